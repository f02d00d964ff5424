package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/signato/signato-auth/pkg"
	"github.com/signato/signato-auth/pkg/relay"
	"github.com/signato/signato-auth/pkg/services"
)

// Wrapper bridges the HTTP wire types to the internal services.
type Wrapper struct {
	Auth *pkg.Auth
	// PublicHost is the host segment embedded in agent launch URIs.
	PublicHost string
	// URIScheme is the custom scheme the agent is registered under.
	URIScheme string
}

// RegisterRoutes mounts the authentication and relay endpoints.
func RegisterRoutes(router *echo.Echo, wrapper *Wrapper, ws *relay.WebSocketTransport, poll *relay.LongPollTransport) {
	router.POST("/auth/challenge", wrapper.RequestChallenge)
	router.POST("/auth/verify", wrapper.VerifyCode)
	router.POST("/identity/session", wrapper.StartIdentitySession)
	router.GET("/identity/session/result", wrapper.IdentitySessionResult)
	router.POST("/signing/session", wrapper.CreateSigningSession)

	router.GET("/relay/ws", ws.Handle)
	router.POST("/relay/poll", poll.Open)
	router.GET("/relay/poll/:session", poll.Poll)
	router.POST("/relay/poll/:session", poll.Push)
	router.DELETE("/relay/poll/:session", poll.Close)
}

// RequestChallenge issues a one-time code, or checks the password for
// password-only signers.
func (w *Wrapper) RequestChallenge(ctx echo.Context) error {
	request := new(ChallengeRequest)
	if err := ctx.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse request body")
	}

	result, err := w.Auth.OTP.RequestChallenge(services.ChallengeRequest{
		Token:             request.Token,
		Identification:    request.Identification,
		IncrementAttempts: !request.Preview,
	})
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, ChallengeResponse{
		DeliveredVia: string(result.DeliveredVia),
		SessionToken: result.SessionToken,
	})
}

// VerifyCode validates a submitted code and returns the secondary auth token.
func (w *Wrapper) VerifyCode(ctx echo.Context) error {
	request := new(VerifyRequest)
	if err := ctx.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse request body")
	}

	authToken, err := w.Auth.OTP.ValidateCode(request.Token, request.Code, true)
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, AuthTokenResponse{AuthToken: authToken})
}

// StartIdentitySession creates a remote identification flow and returns its
// redirect URL.
func (w *Wrapper) StartIdentitySession(ctx echo.Context) error {
	request := new(IdentitySessionRequest)
	if err := ctx.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse request body")
	}

	url, err := w.Auth.Identity.StartFlow(request.Token)
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusCreated, IdentitySessionResponse{URL: url})
}

// IdentitySessionResult polls the remote flow outcome.
func (w *Wrapper) IdentitySessionResult(ctx echo.Context) error {
	token := ctx.QueryParam("token")
	code := ctx.QueryParam("code")
	if token == "" || code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token and code are required")
	}

	authToken, err := w.Auth.Identity.CheckFlow(token, code)
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, AuthTokenResponse{AuthToken: authToken})
}

// CreateSigningSession opens a relay room for a hardware signature and
// returns the launch URI for the desktop agent.
func (w *Wrapper) CreateSigningSession(ctx echo.Context) error {
	request := new(SigningSessionRequest)
	if err := ctx.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse request body")
	}

	session, err := w.Auth.Resolver.ResolveActive(request.Token)
	if err != nil {
		return httpError(err)
	}

	roomID := relay.RoomKey(session.Collection.ID, request.Token)
	launchURI := fmt.Sprintf("%s:/%s_%s", w.URIScheme, roomID, w.PublicHost)
	return ctx.JSON(http.StatusCreated, SigningSessionResponse{RoomID: roomID, LaunchURI: launchURI})
}

// httpError maps service errors onto HTTP statuses with stable codes, so the
// browser can tell "try again" from "session invalid" from "service down".
func httpError(err error) *echo.HTTPError {
	status := http.StatusInternalServerError
	code := "INTERNAL"

	switch {
	case errors.Is(err, services.ErrInvalidToken):
		status, code = http.StatusNotFound, "INVALID_TOKEN"
	case errors.Is(err, services.ErrInvalidCollection):
		status, code = http.StatusBadRequest, "INVALID_DOCUMENT_COLLECTION"
	case errors.Is(err, services.ErrInvalidAuthenticationMode):
		status, code = http.StatusBadRequest, "INVALID_AUTHENTICATION_MODE"
	case errors.Is(err, services.ErrVisualIdentityNotRequired):
		status, code = http.StatusBadRequest, "VISUAL_IDENTITY_NOT_REQUIRED"
	case errors.Is(err, services.ErrInvalidIdentification):
		status, code = http.StatusForbidden, "INVALID_IDENTIFICATION"
	case errors.Is(err, services.ErrInvalidCode):
		status, code = http.StatusForbidden, "INVALID_CODE"
	case errors.Is(err, services.ErrOperationFailed):
		status, code = http.StatusForbidden, "OPERATION_FAILED"
	case errors.Is(err, services.ErrOperationFailedWrongUser):
		status, code = http.StatusForbidden, "OPERATION_FAILED_WRONG_USER"
	case errors.Is(err, services.ErrSubmissionLimitExceeded):
		status, code = http.StatusGone, "SUBMISSION_LIMIT_EXCEEDED"
	case errors.Is(err, services.ErrMaximumAttemptsReached):
		status, code = http.StatusGone, "MAXIMUM_ATTEMPTS_REACHED"
	case errors.Is(err, services.ErrCantReadTokenFromService):
		status, code = http.StatusBadGateway, "VERIFICATION_SERVICE_UNAVAILABLE"
	case errors.Is(err, services.ErrVisualIdentityMissingSettings),
		errors.Is(err, services.ErrMissingAuthenticationConfig):
		status, code = http.StatusInternalServerError, "MISCONFIGURED"
	}

	return echo.NewHTTPError(status, ErrorResponse{Code: code, Message: err.Error()})
}
