package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/signato/signato-auth/cmd"
)

func main() {
	logrus.SetOutput(os.Stdout)
	cmd.Execute()
}
