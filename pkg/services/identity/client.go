package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg/services"
)

// Wire types of the verification service.

type loginRequest struct {
	UserName string `json:"UserName"`
	Password string `json:"Password"`
}

type loginResponse struct {
	Token string `json:"Token"`
}

type identificationRequest struct {
	ID                 string `json:"Id"`
	SuccessRedirectURL string `json:"SuccessRedirectUrl"`
	ErrorRedirectURL   string `json:"ErrorRedirectUrl"`
}

type identificationResponse struct {
	URL string `json:"Url"`
}

// AuthResult is what the service reports for a finished flow.
type AuthResult struct {
	PersonalID     string        `json:"PersonalId"`
	DocumentNumber string        `json:"DocumentNumber"`
	ProcessResult  ProcessResult `json:"ProcessResult"`
}

// login exchanges the stored service credentials for a short-lived bearer
// token. The password is opened here and nowhere else.
func (b *Broker) login() (string, error) {
	password, err := Open(b.config.EncryptedPassword, b.config.SecretKey)
	if err != nil {
		logging.Log().WithError(err).Error("could not open verification service password")
		return "", services.ErrVisualIdentityMissingSettings
	}

	response := loginResponse{}
	if err := b.post("/users/login", "", loginRequest{UserName: b.config.Username, Password: password}, &response); err != nil {
		return "", err
	}
	return response.Token, nil
}

func (b *Broker) createIdentification(bearer, signerToken string) (string, error) {
	request := identificationRequest{
		ID:                 signerToken,
		SuccessRedirectURL: withTokenParam(b.config.SuccessRedirectURL, signerToken),
		ErrorRedirectURL:   withTokenParam(b.config.ErrorRedirectURL, signerToken),
	}
	response := identificationResponse{}
	if err := b.post("/Identification", bearer, request, &response); err != nil {
		return "", err
	}
	return response.URL, nil
}

func (b *Broker) authResult(bearer, signerToken, code string) (*AuthResult, error) {
	endpoint := fmt.Sprintf("%s/Identification/AuthResults/%s?externalId=%s&sessionToken=%s",
		strings.TrimSuffix(b.config.ServiceURL, "/"), url.PathEscape(signerToken),
		url.QueryEscape(code), url.QueryEscape(signerToken))

	request, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+bearer)

	result := &AuthResult{}
	if err := b.do(request, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Broker) post(path, bearer string, body, target interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := strings.TrimSuffix(b.config.ServiceURL, "/") + path
	request, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}
	return b.do(request, target)
}

// do executes the request and maps any non-success status onto
// ErrCantReadTokenFromService after logging the diagnostic context.
func (b *Broker) do(request *http.Request, target interface{}) error {
	response, err := b.client.Do(request)
	if err != nil {
		logging.Log().WithError(err).Errorf("verification service unreachable: %s", request.URL)
		return services.ErrCantReadTokenFromService
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		logging.Log().Errorf("verification service returned %d for %s", response.StatusCode, request.URL)
		return services.ErrCantReadTokenFromService
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		logging.Log().WithError(err).Errorf("verification service returned an unreadable body for %s", request.URL)
		return services.ErrCantReadTokenFromService
	}
	return nil
}

func withTokenParam(raw, token string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
