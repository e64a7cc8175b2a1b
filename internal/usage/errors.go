package usage

import "errors"

// ErrUnknownCategory is returned by the repository for a category without a column.
var ErrUnknownCategory = errors.New("unknown usage category")
