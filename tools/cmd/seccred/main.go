// tools/cmd/seccred/main.go
//
// seccred prints the values a paybill registration needs: the encrypted
// initiator security credential and the push password.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/paybill-gateway/internal/gateway"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "seccred",
		Short:         "Generate gateway credentials for paybill registration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(encryptCmd(), passwordCmd())
	return root
}

func encryptCmd() *cobra.Command {
	var password, certPath string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt an initiator password with the gateway certificate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(certPath)
			if err != nil {
				return err
			}
			key, err := publicKey(raw)
			if err != nil {
				return err
			}
			out, err := encrypt(password, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "initiator password")
	cmd.Flags().StringVar(&certPath, "cert", "", "gateway certificate or public key (PEM or DER)")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("cert")
	return cmd
}

func passwordCmd() *cobra.Command {
	var shortCode, passkey string
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Print a push timestamp and its password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ts := gateway.Timestamp(time.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "timestamp=%s\npassword=%s\n", ts, gateway.Password(shortCode, passkey, ts))
			return nil
		},
	}
	cmd.Flags().StringVar(&shortCode, "shortcode", "", "business short code")
	cmd.Flags().StringVar(&passkey, "passkey", "", "online passkey")
	_ = cmd.MarkFlagRequired("shortcode")
	_ = cmd.MarkFlagRequired("passkey")
	return cmd
}

// publicKey accepts a certificate, a PKIX or PKCS#1 public key, PEM armoured
// or raw DER.
func publicKey(raw []byte) (*rsa.PublicKey, error) {
	der, kind := raw, "CERTIFICATE"
	if block, _ := pem.Decode(raw); block != nil {
		der, kind = block.Bytes, block.Type
	}

	var pub any
	switch kind {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		pub = cert.PublicKey
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(der)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		pub = k
	case "RSA PUBLIC KEY":
		k, err := x509.ParsePKCS1PublicKey(der)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		pub = k
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", kind)
	}

	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("gateway key is not RSA")
	}
	return key, nil
}

func encrypt(password string, key *rsa.PublicKey) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	out, err := rsa.EncryptPKCS1v15(rand.Reader, key, []byte(password))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}
