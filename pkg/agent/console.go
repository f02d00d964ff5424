package agent

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh/terminal"
)

// ConsolePrompt implements Prompt on a terminal. Selection is a numbered
// list, the PIN is read without echo.
type ConsolePrompt struct {
	in  *bufio.Reader
	out *os.File
}

// NewConsolePrompt returns a prompt over stdin/stdout.
func NewConsolePrompt() *ConsolePrompt {
	return &ConsolePrompt{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

func (p *ConsolePrompt) SelectCertificate(certificates []Certificate) (int, bool) {
	fmt.Fprintln(p.out, "Select a signing certificate:")
	for i, certificate := range certificates {
		marker := " "
		if !certificate.HasPrivateKey {
			marker = "!"
		}
		fmt.Fprintf(p.out, "  [%d]%s %s\n", i+1, marker, certificate.Subject)
	}
	fmt.Fprint(p.out, "Choice (empty to cancel): ")

	line, err := p.in.ReadString('\n')
	if err != nil {
		return 0, false
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}
	choice, err := strconv.Atoi(line)
	if err != nil {
		return -1, true
	}
	return choice - 1, true
}

func (p *ConsolePrompt) AskPIN() (string, bool) {
	fmt.Fprint(p.out, "Card PIN: ")
	pin, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", false
	}
	return string(pin), true
}

func (p *ConsolePrompt) Dispose() {}

// TokenCertStore lists the connected tokens as selectable certificates. The
// slot label stands in for the subject; a present token implies a private
// key, reading the actual certificate would already require the PIN.
type TokenCertStore struct {
	loader     ModuleLoader
	candidates []DriverCandidate
}

// NewTokenCertStore returns a store probing the given candidates. An empty
// candidate list uses the default table.
func NewTokenCertStore(loader ModuleLoader, candidates []DriverCandidate) *TokenCertStore {
	if len(candidates) == 0 {
		candidates = DefaultDriverCandidates
	}
	return &TokenCertStore{loader: loader, candidates: candidates}
}

func (s *TokenCertStore) List() ([]Certificate, error) {
	var certificates []Certificate
	for _, candidate := range s.candidates {
		module, err := s.loader(candidate.Library)
		if err != nil {
			continue
		}
		slots, err := module.Slots()
		if err == nil {
			for _, slot := range slots {
				certificates = append(certificates, Certificate{
					Subject:       fmt.Sprintf("%s (%s)", slot.Label, candidate.Provider),
					HasPrivateKey: true,
				})
			}
		}
		module.Close()
	}
	return certificates, nil
}
