package config

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by Guard.
var (
	ErrUIDRangeInverted  = errors.New("min_uid is greater than max_uid")
	ErrGIDRangeInverted  = errors.New("min_gid is greater than max_gid")
	ErrUIDTooSmall       = errors.New("min_uid must be at least 1")
	ErrGIDTooSmall       = errors.New("min_gid must be at least 1")
	ErrUIDOverflowsInt32 = errors.New("max_uid does not fit in int32 minus the sentinel value")
	ErrGIDOverflowsInt32 = errors.New("max_gid does not fit in int32 minus the sentinel value")
	ErrStringTooLong     = errors.New("a compile-time configuration string exceeds its length limit")
)

// init runs the static checks of spec.md §4.8 step 1 against the
// compiled-in production configuration. It is unconditional: unlike a
// function called from a branch of main, init always runs before
// main's body starts, so there is no CLI flag (-h, -C, -V, or no flag
// at all) that can reach the pipeline - or even print usage - with an
// unchecked configuration. A failure here means the binary was built
// with an inconsistent configuration, which is a build-time defect,
// not a runtime condition to recover from.
func init() {
	if err := Guard(Default()); err != nil {
		panic("sucgi: compiled-in configuration failed static guards: " + err.Error())
	}
}

// Guard runs the static checks spec.md §4.8 step 1 calls for: the
// configured UID/GID bounds must be sane and must fit the signed
// range reserved for these IDs (leaving -1 free as a sentinel), and
// every compile-time string must fit the length limit the pipeline
// will later enforce on values derived from it. A failure here means
// the binary was built with an inconsistent configuration and must
// never run the pipeline. It remains an exported plain function, not
// solely an init side effect, so tests can exercise it against
// deliberately broken Config values without forking a process.
func Guard(c Config) error {
	if c.MinUID < 1 {
		return ErrUIDTooSmall
	}
	if c.MinGID < 1 {
		return ErrGIDTooSmall
	}
	if c.MinUID > c.MaxUID {
		return ErrUIDRangeInverted
	}
	if c.MinGID > c.MaxGID {
		return ErrGIDRangeInverted
	}
	if c.MaxUID > uint32(math.MaxInt32-1) {
		return ErrUIDOverflowsInt32
	}
	if c.MaxGID > uint32(math.MaxInt32-1) {
		return ErrGIDOverflowsInt32
	}

	if len(c.UserDir) >= c.MaxStrLen {
		return fmt.Errorf("%w: user_dir", ErrStringTooLong)
	}
	if len(c.Path) >= c.MaxStrLen {
		return fmt.Errorf("%w: path", ErrStringTooLong)
	}
	for _, h := range c.Handlers {
		if len(h.Suffix) >= c.MaxStrLen || len(h.Program) >= c.MaxStrLen {
			return fmt.Errorf("%w: handler %q", ErrStringTooLong, h.Suffix)
		}
	}
	for _, pat := range c.EnvPatterns {
		if len(pat) >= c.MaxStrLen {
			return fmt.Errorf("%w: env pattern %q", ErrStringTooLong, pat)
		}
	}

	return nil
}
