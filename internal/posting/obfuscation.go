package posting

import (
	"strings"

	"github.com/google/uuid"

	"juicenet/internal/config"
)

// Identity is the subject and poster a release is posted under.
type Identity struct {
	Subject string
	// NZBSubject keeps real file names in the NZB when article subjects are
	// obfuscated. Empty when subjects are not obfuscated.
	NZBSubject        string
	Poster            string
	ObfuscateArticles bool
}

// obfuscatedSuffix keeps the part counters while the name is hidden.
const obfuscatedSuffix = " [{0part}/{parts}] yEnc ({part}/{parts})"

// NewIdentity applies the obfuscation policy. randomID supplies fresh
// identifiers and defaults to random UUIDs.
func NewIdentity(cfg config.Posting, randomID func() string) Identity {
	if randomID == nil {
		randomID = func() string { return uuid.NewString() }
	}
	identity := Identity{Subject: cfg.Subject, Poster: cfg.Poster}
	if cfg.Obfuscation == config.ObfuscationNone || cfg.Obfuscation == "" {
		return identity
	}

	token := compact(randomID())
	name := compact(randomID())
	if len(name) > 12 {
		name = name[:12]
	}
	identity.Subject = token + obfuscatedSuffix
	identity.NZBSubject = cfg.Subject
	identity.Poster = name + " <" + name + "@" + name[:min(6, len(name))] + ".net>"
	identity.ObfuscateArticles = cfg.Obfuscation == config.ObfuscationFull
	return identity
}

func compact(id string) string {
	return strings.ReplaceAll(id, "-", "")
}
