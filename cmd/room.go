package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/signato/signato-auth/api"
	"github.com/signato/signato-auth/logging"
)

var roomServerURL string
var roomToken string

// roomCmd is a development helper: it opens a signing session against a
// running server and renders the launch URI as a QR code, so the agent flow
// can be exercised from a second machine without the full web frontend.
var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Open a signing session and print its launch URI as a QR code",
	Run: func(cmd *cobra.Command, args []string) {
		body, err := json.Marshal(api.SigningSessionRequest{Token: roomToken})
		if err != nil {
			logging.Log().WithError(err).Fatal("Could not encode request")
		}

		response, err := http.Post(roomServerURL+"/signing/session", "application/json", bytes.NewReader(body))
		if err != nil {
			logging.Log().WithError(err).Fatal("Could not reach server")
		}
		defer response.Body.Close()
		if response.StatusCode != http.StatusCreated {
			logging.Log().Fatalf("Server returned status %d", response.StatusCode)
		}

		session := api.SigningSessionResponse{}
		if err := json.NewDecoder(response.Body).Decode(&session); err != nil {
			logging.Log().WithError(err).Fatal("Could not decode response")
		}

		fmt.Printf("Room:       %s\n", session.RoomID)
		fmt.Printf("Launch URI: %s\n\n", session.LaunchURI)
		qrterminal.GenerateHalfBlock(session.LaunchURI, qrterminal.L, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(roomCmd)
	roomCmd.Flags().StringVar(&roomServerURL, "server", "http://localhost:3000", "Base URL of a running server")
	roomCmd.Flags().StringVar(&roomToken, "token", "", "Signer token to open the session for")
	_ = roomCmd.MarkFlagRequired("token")
}
