// Package ebox implements the Ebox assembler: primary-or-threshold-
// recovery unlock semantics built from multiple Box instances glued
// together with Shamir secret sharing.
package ebox

import (
	"errors"

	"github.com/sundarnagarajan/pivy/internal/wire"
)

const (
	Magic0  = 0xEB
	Magic1  = 0x0C
	Version = 3
)

// Type is the Ebox's overall purpose. It is carried on the wire but the
// core's seal and unseal paths behave the same for every Type; TEMPLATE
// and STREAM exist for wire compatibility only — streaming and chunked
// payloads aren't implemented by this package.
type Type uint8

const (
	TypeTemplate Type = 1
	TypeKey      Type = 2
	TypeStream   Type = 3
)

// ConfigType distinguishes a config's unlock semantics.
type ConfigType uint8

const (
	ConfigPrimary  ConfigType = 1
	ConfigRecovery ConfigType = 2
)

var (
	ErrBadMagic      = errors.New("ebox: bad magic")
	ErrBadVersion    = errors.New("ebox: bad version")
	ErrNoEphemerals  = errors.New("ebox: no ephemeral keys")
	ErrUnknownTag    = errors.New("ebox: unknown part tag")
	ErrNonceTooShort = errors.New("ebox: box nonce shorter than 16 bytes")
)

// Ebox is a sealed container realizing primary-XOR-threshold-recovery
// unlock semantics over K_final.
type Ebox struct {
	Type               Type
	RecoveryCipher     string
	RecoveryIV         []byte
	RecoveryCiphertextAndTag []byte
	Ephemerals         map[string][]byte // curve name -> compressed ephemeral pubkey
	Configs            []Config
}

// Config is one unlock path: either the single PRIMARY path or one
// N-of-M RECOVERY path.
type Config struct {
	Type  ConfigType
	N     int
	Nonce []byte // cfg_nonce; empty for PRIMARY, 16 random bytes for RECOVERY
	Parts []Part
}

// Encode serializes e to its on-disk wire format.
func (e *Ebox) Encode() []byte {
	w := wire.NewWriter()
	w.U8(Magic0)
	w.U8(Magic1)
	w.U8(Version)
	w.U8(uint8(e.Type))
	w.CString8(e.RecoveryCipher)
	w.String8(e.RecoveryIV)
	w.String8(e.RecoveryCiphertextAndTag)

	curves := sortedCurves(e.Ephemerals)
	w.U8(uint8(len(curves)))
	for _, c := range curves {
		w.CString8(c)
		w.String8(e.Ephemerals[c])
	}

	w.U8(uint8(len(e.Configs)))
	for _, cfg := range e.Configs {
		w.U8(uint8(cfg.Type))
		w.U8(uint8(cfg.N))
		w.U8(uint8(len(cfg.Parts)))
		w.String8(cfg.nonce())
		for _, p := range cfg.Parts {
			encodePart(w, p)
		}
	}
	return w.Bytes()
}

// nonce returns the config-level cfg_nonce: empty for PRIMARY, 16
// random bytes for RECOVERY.
func (c Config) nonce() []byte { return c.Nonce }

// Decode parses an Ebox from its on-disk wire format.
func Decode(buf []byte) (*Ebox, error) {
	r := wire.NewReader(buf)
	m0, err := r.U8()
	if err != nil {
		return nil, err
	}
	m1, err := r.U8()
	if err != nil {
		return nil, err
	}
	if m0 != Magic0 || m1 != Magic1 {
		return nil, ErrBadMagic
	}
	version, err := r.U8()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, ErrBadVersion
	}
	typ, err := r.U8()
	if err != nil {
		return nil, err
	}
	recoveryCipher, err := r.CString8()
	if err != nil {
		return nil, err
	}
	recoveryIV, err := r.String8()
	if err != nil {
		return nil, err
	}
	recoveryCT, err := r.String8()
	if err != nil {
		return nil, err
	}

	nEphems, err := r.U8()
	if err != nil {
		return nil, err
	}
	ephemerals := make(map[string][]byte, nEphems)
	for i := 0; i < int(nEphems); i++ {
		curve, err := r.CString8()
		if err != nil {
			return nil, err
		}
		pub, err := r.String8()
		if err != nil {
			return nil, err
		}
		ephemerals[curve] = pub
	}
	if len(ephemerals) == 0 {
		return nil, ErrNoEphemerals
	}

	nConfigs, err := r.U8()
	if err != nil {
		return nil, err
	}
	configs := make([]Config, 0, nConfigs)
	for i := 0; i < int(nConfigs); i++ {
		cfgType, err := r.U8()
		if err != nil {
			return nil, err
		}
		n, err := r.U8()
		if err != nil {
			return nil, err
		}
		m, err := r.U8()
		if err != nil {
			return nil, err
		}
		cfgNonce, err := r.String8()
		if err != nil {
			return nil, err
		}
		if len(cfgNonce) > 0 && len(cfgNonce) < 16 {
			return nil, ErrNonceTooShort
		}
		parts := make([]Part, 0, m)
		for j := 0; j < int(m); j++ {
			p, err := decodePart(r)
			if err != nil {
				return nil, err
			}
			if len(p.Box.Nonce) < 16 {
				return nil, ErrNonceTooShort
			}
			parts = append(parts, p)
		}
		configs = append(configs, Config{
			Type:  ConfigType(cfgType),
			N:     int(n),
			Nonce: cfgNonce,
			Parts: parts,
		})
	}

	return &Ebox{
		Type:                     Type(typ),
		RecoveryCipher:           recoveryCipher,
		RecoveryIV:               recoveryIV,
		RecoveryCiphertextAndTag: recoveryCT,
		Ephemerals:               ephemerals,
		Configs:                  configs,
	}, nil
}

func sortedCurves(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	// Stable, deterministic ordering keeps Encode(Decode(b)) == b even
	// though Go map iteration order is randomized.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
