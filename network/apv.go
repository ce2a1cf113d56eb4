package network

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter/validatorpk"
	"github.com/rony4d/go-planet-node/utils/configerr"
)

// MalformedProtocolVersionError is returned for an app protocol version
// token that cannot be parsed or whose signature does not check out.
type MalformedProtocolVersionError struct {
	Token  string
	Reason error
}

func (e *MalformedProtocolVersionError) Error() string {
	return fmt.Sprintf("malformed app protocol version token %q: %v", e.Token, e.Reason)
}

func (e *MalformedProtocolVersionError) Unwrap() error { return e.Reason }

func (e *MalformedProtocolVersionError) Is(target error) bool {
	return target == configerr.ErrInvalidConfiguration
}

// AppProtocolVersion is a signed statement of which application version a
// node speaks. Peers exchange it during the status handshake and only talk
// to peers announcing the same one.
//
// Its token form is
//
//	<version>/<signer address hex>/<signature base64url>[/<extra base64url>]
type AppProtocolVersion struct {
	Version   int32
	Extra     []byte
	Signer    common.Address
	Signature []byte
}

type apvPreimage struct {
	Version uint32
	Extra   []byte
}

func apvDigest(version int32, extra []byte) hash.Hash {
	raw, err := rlp.EncodeToBytes(&apvPreimage{Version: uint32(version), Extra: extra})
	if err != nil {
		panic(err)
	}
	return hash.Of(raw)
}

// SignAppProtocolVersion signs version and extra with key.
func SignAppProtocolVersion(key *ecdsa.PrivateKey, version int32, extra []byte) (AppProtocolVersion, error) {
	sig, err := crypto.Sign(apvDigest(version, extra).Bytes(), key)
	if err != nil {
		return AppProtocolVersion{}, err
	}
	return AppProtocolVersion{
		Version:   version,
		Extra:     extra,
		Signer:    crypto.PubkeyToAddress(key.PublicKey),
		Signature: sig,
	}, nil
}

var tokenEncoding = base64.RawURLEncoding

// Token renders the version in its textual form.
func (v AppProtocolVersion) Token() string {
	parts := []string{
		strconv.FormatInt(int64(v.Version), 10),
		strings.TrimPrefix(strings.ToLower(v.Signer.Hex()), "0x"),
		tokenEncoding.EncodeToString(v.Signature),
	}
	if len(v.Extra) > 0 {
		parts = append(parts, tokenEncoding.EncodeToString(v.Extra))
	}
	return strings.Join(parts, "/")
}

func (v AppProtocolVersion) String() string {
	return v.Token()
}

// Equal reports whether both versions are the same signed statement.
func (v AppProtocolVersion) Equal(other AppProtocolVersion) bool {
	return v.Version == other.Version &&
		v.Signer == other.Signer &&
		bytes.Equal(v.Extra, other.Extra) &&
		bytes.Equal(v.Signature, other.Signature)
}

// Verify checks that the signature was made by the signer address.
func (v AppProtocolVersion) Verify() error {
	if len(v.Signature) != crypto.SignatureLength {
		return errors.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	pub, err := crypto.SigToPub(apvDigest(v.Version, v.Extra).Bytes(), v.Signature)
	if err != nil {
		return err
	}
	if crypto.PubkeyToAddress(*pub) != v.Signer {
		return errors.New("signature is not from the signer")
	}
	return nil
}

// ParseAppProtocolVersion parses and verifies a token.
func ParseAppProtocolVersion(token string) (AppProtocolVersion, error) {
	malformed := func(reason error) (AppProtocolVersion, error) {
		return AppProtocolVersion{}, &MalformedProtocolVersionError{Token: token, Reason: reason}
	}

	parts := strings.Split(token, "/")
	if len(parts) != 3 && len(parts) != 4 {
		return malformed(errors.New("expected version/signer/signature[/extra]"))
	}
	version, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return malformed(errors.Wrap(err, "version"))
	}
	if len(parts[1]) != 2*common.AddressLength || !common.IsHexAddress(parts[1]) {
		return malformed(errors.New("signer must be a 20-byte hex address"))
	}
	sig, err := tokenEncoding.DecodeString(parts[2])
	if err != nil {
		return malformed(errors.Wrap(err, "signature"))
	}
	var extra []byte
	if len(parts) == 4 {
		if extra, err = tokenEncoding.DecodeString(parts[3]); err != nil {
			return malformed(errors.Wrap(err, "extra"))
		}
	}

	v := AppProtocolVersion{
		Version:   int32(version),
		Extra:     extra,
		Signer:    common.HexToAddress(parts[1]),
		Signature: sig,
	}
	if err := v.Verify(); err != nil {
		return malformed(err)
	}
	return v, nil
}

// DifferentVersionFunc is called when a peer announces a version other than
// ours that is signed by a trusted signer, typically to tell the operator
// an upgrade is out.
type DifferentVersionFunc func(p peer.ID, peerVersion, localVersion AppProtocolVersion)

// AppProtocolVersionOptions is the local version and the signers whose
// versions are worth reporting.
type AppProtocolVersionOptions struct {
	Version        AppProtocolVersion
	TrustedSigners []common.Address

	// DifferentVersionEncountered may be nil.
	DifferentVersionEncountered DifferentVersionFunc
}

// IsTrusted reports whether v is signed by a trusted signer. With no
// trusted signers configured every signer is trusted.
func (o AppProtocolVersionOptions) IsTrusted(v AppProtocolVersion) bool {
	if len(o.TrustedSigners) == 0 {
		return true
	}
	for _, s := range o.TrustedSigners {
		if s == v.Signer {
			return true
		}
	}
	return false
}

// Accept decides whether to talk to a peer announcing remote. Only the
// exact local version is accepted; a different one from a trusted signer
// is reported through DifferentVersionEncountered first.
func (o AppProtocolVersionOptions) Accept(p peer.ID, remote AppProtocolVersion) bool {
	if remote.Equal(o.Version) {
		return true
	}
	if remote.Verify() == nil && o.IsTrusted(remote) && o.DifferentVersionEncountered != nil {
		o.DifferentVersionEncountered(p, remote, o.Version)
	}
	return false
}

func parseTrustedSigners(hexKeys []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(hexKeys))
	for _, s := range hexKeys {
		pk, err := validatorpk.FromString(s)
		if err != nil {
			return nil, configerr.Invalid("TrustedAppProtocolVersionSigners", s, err)
		}
		pub, err := pk.ECDSA()
		if err != nil {
			return nil, configerr.Invalid("TrustedAppProtocolVersionSigners", s, err)
		}
		out = append(out, crypto.PubkeyToAddress(*pub))
	}
	return out, nil
}
