package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/illmade-knight/go-dysonlocal/pkg/cloud"
	"github.com/illmade-knight/go-dysonlocal/pkg/microservice"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// runLogin performs the emailed one-time-code login and prints a cloud
// section for the host configuration.
func runLogin(ctx context.Context, cfg *microservice.CloudConfig, email string, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	account, err := cloud.NewAccount(cloudConfig(cfg), nil, nil, logger)
	if err != nil {
		return err
	}
	challenge, err := account.BeginLogin(ctx, email)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	otp, err := prompt(scanner, out, "Code from the verification email: ")
	if err != nil {
		return err
	}
	password, err := prompt(scanner, out, "Account password: ")
	if err != nil {
		return err
	}
	auth, err := account.CompleteLogin(ctx, challenge, otp, password)
	if err != nil {
		return err
	}

	section := microservice.CloudConfig{Email: email, Token: auth.Token}
	if cfg != nil {
		section.Country, section.China, section.BaseURL = cfg.Country, cfg.China, cfg.BaseURL
	}
	return yaml.NewEncoder(out).Encode(map[string]microservice.CloudConfig{"cloud": section})
}

func prompt(scanner *bufio.Scanner, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(scanner.Text()), nil
}
