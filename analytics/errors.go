package analytics

import "errors"

var ErrNoStore = errors.New("result store is not configured")
