package app

import (
	"github.com/pion/randutil"
	"github.com/rs/zerolog/log"
)

const (
	GuestPrefix          = "Guest-"
	GuestSuffixLen       = 4
	GuestCharset         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	MaxGuestNameAttempts = 16
)

// GuestNamer generates display names for anonymous connections.
// Uniqueness is soft: after MaxAttempts collisions the last candidate is
// returned anyway.
type GuestNamer struct {
	Prefix      string
	Charset     string
	SuffixLen   int
	MaxAttempts int

	generate func(n int, runes string) (string, error)
	fallback randutil.MathRandomGenerator
}

func NewGuestNamer() *GuestNamer {
	return &GuestNamer{
		Prefix:      GuestPrefix,
		Charset:     GuestCharset,
		SuffixLen:   GuestSuffixLen,
		MaxAttempts: MaxGuestNameAttempts,
		generate:    randutil.GenerateCryptoRandomString,
		fallback:    randutil.NewMathRandomGenerator(),
	}
}

// Next draws candidates until taken reports false or attempts run out.
func (g *GuestNamer) Next(taken func(string) bool) string {
	attempts := g.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var candidate string
	for i := 0; i < attempts; i++ {
		candidate = g.Prefix + g.suffix()
		if !taken(candidate) {
			return candidate
		}
	}
	log.Warn().Str("module", "app.names").Str("name", candidate).Int("attempts", attempts).Msg("guest name space exhausted, accepting collision")
	return candidate
}

func (g *GuestNamer) suffix() string {
	s, err := g.generate(g.SuffixLen, g.Charset)
	if err == nil {
		return s
	}
	log.Warn().Err(err).Str("module", "app.names").Msg("crypto random failed, using math random")
	return g.fallback.GenerateString(g.SuffixLen, g.Charset)
}
