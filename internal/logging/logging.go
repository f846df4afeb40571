package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"zytech/internal/config"
)

// New arma el logger según el ambiente: JSON en prod, consola legible en el resto.
func New(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsProd() {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build(zap.Fields(zap.String("env", cfg.AppEnv)))
}
