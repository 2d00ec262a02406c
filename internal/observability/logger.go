package observability

import "github.com/tphakala/fragring/internal/logger"

var log = logger.Global().Module("metrics")
