package suitability

import "go.uber.org/zap"

// Progressor receives step progress. It is an observer only.
type Progressor interface {
	Start(label string, min, max int)
	Label(label string)
	Advance()
	Message(msg string)
	Reset()
}

// LogProgressor reports progress through a zap logger.
type LogProgressor struct {
	log      *zap.Logger
	min, max int
	pos      int
	label    string
}

// NewLogProgressor returns a progressor writing to log. A nil log uses the
// global logger.
func NewLogProgressor(log *zap.Logger) *LogProgressor {
	if log == nil {
		log = zap.L()
	}
	return &LogProgressor{log: log.With(zap.String("component", "progress"))}
}

func (p *LogProgressor) Start(label string, min, max int) {
	p.min, p.max, p.pos, p.label = min, max, min, label
	p.log.Info(label, zap.Int("position", p.pos), zap.Int("max", p.max))
}

func (p *LogProgressor) Label(label string) {
	p.label = label
	p.log.Info(label, zap.Int("position", p.pos), zap.Int("max", p.max))
}

func (p *LogProgressor) Advance() {
	if p.pos < p.max {
		p.pos++
	}
	p.log.Debug("progress", zap.String("label", p.label), zap.Int("position", p.pos), zap.Int("max", p.max))
}

func (p *LogProgressor) Message(msg string) {
	p.log.Info(msg)
}

func (p *LogProgressor) Reset() {
	p.pos, p.label = p.min, ""
}

// Position returns the current step position.
func (p *LogProgressor) Position() int {
	return p.pos
}

type nopProgressor struct{}

func (nopProgressor) Start(string, int, int) {}
func (nopProgressor) Label(string)           {}
func (nopProgressor) Advance()               {}
func (nopProgressor) Message(string)         {}
func (nopProgressor) Reset()                 {}
