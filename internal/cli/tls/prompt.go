package tls

import (
	"bufio"
	"crypto/x509"
	"fmt"
	"io"
	"strings"
)

// AssumeYes accepts every unknown certificate.
func AssumeYes(string, *x509.Certificate) bool { return true }

// PromptAccept returns an AcceptFunc that shows the certificate on out and asks for
// confirmation on in. Any answer other than yes rejects it.
func PromptAccept(in io.Reader, out io.Writer) AcceptFunc {
	reader := bufio.NewReader(in)

	return func(host string, cert *x509.Certificate) bool {
		fmt.Fprintf(out, "\nWARNING: Unknown TLS certificate\n")
		fmt.Fprintf(out, "  Host:        %s\n", host)
		fmt.Fprintf(out, "  Subject:     %s\n", cert.Subject)
		fmt.Fprintf(out, "  Issuer:      %s\n", cert.Issuer)
		fmt.Fprintf(out, "  Valid Until: %s\n", cert.NotAfter.Format("2006-01-02"))
		fmt.Fprintf(out, "  Fingerprint: %s\n\n", Fingerprint(cert))

		for range 3 {
			fmt.Fprintf(out, "Trust this certificate? (yes/no): ")

			answer, err := reader.ReadString('\n')
			switch strings.ToLower(strings.TrimSpace(answer)) {
			case "yes", "y":
				return true
			case "no", "n":
				return false
			}
			if err != nil {
				return false
			}
			fmt.Fprintf(out, "Please answer 'yes' or 'no'\n")
		}
		return false
	}
}
