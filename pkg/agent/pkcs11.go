package agent

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"strings"

	"github.com/miekg/pkcs11"
)

// sha256DigestInfo is the DER prefix for an RSA PKCS#1 v1.5 signature over a
// SHA-256 digest. The relay hands us the bare hash, so the mechanism is
// CKM_RSA_PKCS and the DigestInfo wrapping happens here.
var sha256DigestInfo = []byte{
	0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
	0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
}

// p11Module is the production Module over a loaded PKCS#11 library.
type p11Module struct {
	ctx *pkcs11.Ctx
}

var _ Module = (*p11Module)(nil)

// LoadModule opens and initializes a PKCS#11 library. It is the production
// ModuleLoader.
func LoadModule(library string) (Module, error) {
	ctx := pkcs11.New(library)
	if ctx == nil {
		return nil, fmt.Errorf("could not load %s", library)
	}
	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("could not initialize %s: %w", library, err)
	}
	return &p11Module{ctx: ctx}, nil
}

func (m *p11Module) Slots() ([]SlotInfo, error) {
	ids, err := m.ctx.GetSlotList(true)
	if err != nil {
		return nil, err
	}
	var slots []SlotInfo
	for _, id := range ids {
		info, err := m.ctx.GetTokenInfo(id)
		if err != nil {
			// a slot without a readable token is unusable, skip it
			continue
		}
		slots = append(slots, SlotInfo{ID: id, Label: strings.TrimRight(info.Label, " ")})
	}
	return slots, nil
}

func (m *p11Module) Signer(slot SlotInfo, pin string) (SlotSigner, error) {
	session, err := m.ctx.OpenSession(slot.ID, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		return nil, fmt.Errorf("could not open session on slot %d: %w", slot.ID, err)
	}
	if err := m.ctx.Login(session, pkcs11.CKU_USER, pin); err != nil {
		_ = m.ctx.CloseSession(session)
		return nil, fmt.Errorf("login on slot %d failed: %w", slot.ID, err)
	}

	key, err := m.findObject(session, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
	})
	if err != nil {
		_ = m.ctx.CloseSession(session)
		return nil, fmt.Errorf("no signing key on slot %d: %w", slot.ID, err)
	}

	return &p11Signer{module: m, session: session, key: key}, nil
}

func (m *p11Module) Close() {
	_ = m.ctx.Finalize()
	m.ctx.Destroy()
}

func (m *p11Module) findObject(session pkcs11.SessionHandle, template []*pkcs11.Attribute) (pkcs11.ObjectHandle, error) {
	if err := m.ctx.FindObjectsInit(session, template); err != nil {
		return 0, err
	}
	defer func() { _ = m.ctx.FindObjectsFinal(session) }()

	objects, _, err := m.ctx.FindObjects(session, 1)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, fmt.Errorf("object not found")
	}
	return objects[0], nil
}

// p11Signer implements SlotSigner over one logged-in session.
type p11Signer struct {
	module  *p11Module
	session pkcs11.SessionHandle
	key     pkcs11.ObjectHandle
}

func (s *p11Signer) Public() crypto.PublicKey {
	certificate, err := s.Certificate()
	if err != nil {
		return nil
	}
	return certificate.PublicKey
}

// Sign expects digest to be the SHA-256 hash supplied by the relay.
func (s *p11Signer) Sign(_ io.Reader, digest []byte, _ crypto.SignerOpts) ([]byte, error) {
	mechanism := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}
	if err := s.module.ctx.SignInit(s.session, mechanism, s.key); err != nil {
		return nil, err
	}
	return s.module.ctx.Sign(s.session, append(append([]byte{}, sha256DigestInfo...), digest...))
}

func (s *p11Signer) Certificate() (*x509.Certificate, error) {
	object, err := s.module.findObject(s.session, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_CERTIFICATE),
	})
	if err != nil {
		return nil, err
	}
	attributes, err := s.module.ctx.GetAttributeValue(s.session, object, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, nil),
	})
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(attributes[0].Value)
}

func (s *p11Signer) Close() {
	_ = s.module.ctx.Logout(s.session)
	_ = s.module.ctx.CloseSession(s.session)
}
