package logger

import (
	"log"

	"go.uber.org/zap"
)

// NewStd returns a stdlib *log.Logger that writes through z at error level
// under the given component name. It is meant for http.Server.ErrorLog and
// other APIs that only accept the standard logger.
func NewStd(z *zap.Logger, component string) *log.Logger {
	if z == nil {
		z = zap.NewNop()
	}
	std, err := zap.NewStdLogAt(z.Named(component), zap.ErrorLevel)
	if err != nil {
		return zap.NewStdLog(z.Named(component))
	}
	return std
}
