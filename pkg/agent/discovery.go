package agent

import (
	"crypto"
	"crypto/x509"
	"errors"

	"github.com/signato/signato-auth/logging"
)

// ErrNoDriver is returned when no candidate driver exposes a usable slot.
var ErrNoDriver = errors.New("no usable cryptographic driver found")

// DriverCandidate maps a card provider to its PKCS#11 library.
type DriverCandidate struct {
	Provider string
	Library  string
}

// DefaultDriverCandidates is the probe table. Order matters: common drivers
// first, but a hit on the last entry is just as valid as one on the first.
var DefaultDriverCandidates = []DriverCandidate{
	{Provider: "OpenSC", Library: "opensc-pkcs11.so"},
	{Provider: "SafeNet eToken", Library: "libeToken.so"},
	{Provider: "Gemalto IDPrime", Library: "libIDPrimePKCS11.so"},
	{Provider: "AKD eID", Library: "libAkdEidPkcs11.so"},
	{Provider: "Oberthur AWP", Library: "libOcsCryptoki.so"},
}

// SlotInfo is one logical token endpoint of a driver.
type SlotInfo struct {
	ID    uint
	Label string
}

// DriverSlotSelection is the outcome of a successful probe, cached so later
// hash requests in the same run skip re-probing.
type DriverSlotSelection struct {
	DriverLibrary  string
	SlotID         uint
	SlotLabel      string
	SelectBySlotID bool
}

// Module abstracts one loaded PKCS#11 library.
type Module interface {
	Slots() ([]SlotInfo, error)
	// Signer opens a session on the slot and logs in with the PIN.
	Signer(slot SlotInfo, pin string) (SlotSigner, error)
	Close()
}

// SlotSigner signs digests with the private key on one slot.
type SlotSigner interface {
	crypto.Signer
	Certificate() (*x509.Certificate, error)
	Close()
}

// ModuleLoader opens a driver library by path. The production loader wraps
// miekg/pkcs11; tests substitute fakes.
type ModuleLoader func(library string) (Module, error)

// Discovery probes the candidate table for a usable driver and slot.
type Discovery struct {
	loader     ModuleLoader
	candidates []DriverCandidate

	selection *DriverSlotSelection
	module    Module
}

// NewDiscovery returns a Discovery over the given candidates. An empty
// candidate list uses the default table.
func NewDiscovery(loader ModuleLoader, candidates []DriverCandidate) *Discovery {
	if len(candidates) == 0 {
		candidates = DefaultDriverCandidates
	}
	return &Discovery{loader: loader, candidates: candidates}
}

// Select returns the cached selection or walks the candidate table. A
// candidate that fails to load or exposes zero slots is skipped, never fatal;
// only exhausting the whole table is.
func (d *Discovery) Select() (*DriverSlotSelection, Module, error) {
	if d.selection != nil {
		return d.selection, d.module, nil
	}

	for _, candidate := range d.candidates {
		module, err := d.loader(candidate.Library)
		if err != nil {
			logging.Log().Debugf("driver %s (%s) not available: %v", candidate.Provider, candidate.Library, err)
			continue
		}

		slots, err := module.Slots()
		if err != nil {
			logging.Log().Debugf("driver %s: could not list slots: %v", candidate.Provider, err)
			module.Close()
			continue
		}
		if len(slots) == 0 {
			module.Close()
			continue
		}

		slot := slots[0]
		d.selection = &DriverSlotSelection{
			DriverLibrary:  candidate.Library,
			SlotID:         slot.ID,
			SlotLabel:      slot.Label,
			SelectBySlotID: hasDuplicateLabels(slots),
		}
		d.module = module
		logging.Log().Infof("selected driver %s, slot %d (%s)", candidate.Library, slot.ID, slot.Label)
		return d.selection, d.module, nil
	}

	return nil, nil, ErrNoDriver
}

// Close releases the cached module, if any.
func (d *Discovery) Close() {
	if d.module != nil {
		d.module.Close()
		d.module = nil
		d.selection = nil
	}
}

// hasDuplicateLabels decides the selection mode. When two physical tokens
// carry the same label, selecting by label could sign with the wrong one, so
// selection switches to the numeric slot id.
func hasDuplicateLabels(slots []SlotInfo) bool {
	seen := map[string]bool{}
	for _, slot := range slots {
		if seen[slot.Label] {
			return true
		}
		seen[slot.Label] = true
	}
	return false
}
