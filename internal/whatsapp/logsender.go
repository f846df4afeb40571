package whatsapp

import (
	"context"

	"go.uber.org/zap"
)

// LogSender loguea los envíos en vez de mandarlos. Es el canal de dev cuando
// no hay WHATSAPP_TOKEN.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("wa-dry-run")}
}

func (s *LogSender) SendText(_ context.Context, phoneNumberID, to, body string) error {
	s.logger.Info("📤 text", zap.String("from", phoneNumberID), zap.String("to", to), zap.String("body", body))
	return nil
}

func (s *LogSender) SendList(_ context.Context, phoneNumberID, to, headerText, _, body, _, buttonText string, sections []Section) error {
	rows := 0
	for _, sec := range sections {
		rows += len(sec.Rows)
	}
	s.logger.Info("📤 list", zap.String("from", phoneNumberID), zap.String("to", to),
		zap.String("header", headerText), zap.String("body", body), zap.String("button", buttonText), zap.Int("rows", rows))
	return nil
}

func (s *LogSender) SendButtons(_ context.Context, phoneNumberID, to, headerText, _, body, _ string, buttons []Button) error {
	titles := make([]string, 0, len(buttons))
	for _, b := range buttons {
		titles = append(titles, b.Title)
	}
	s.logger.Info("📤 buttons", zap.String("from", phoneNumberID), zap.String("to", to),
		zap.String("header", headerText), zap.String("body", body), zap.Strings("buttons", titles))
	return nil
}
