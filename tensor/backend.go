// Copyright 2026 Ember ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/ember-ml/ember/internal/tensor"
)

// Backend is the device kernel interface. Implementations live under
// backend/ (currently backend/cpu).
type Backend = tensor.Backend
