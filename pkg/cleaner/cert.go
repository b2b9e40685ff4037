// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cleaner

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"
)

const certTimeLayout = "Jan _2 15:04:05 2006 MST"

// certificateText renders every certificate in data, PEM or DER, as the
// text dump that replaces the file before it is rewritten. ok is false when
// nothing in data parses as a certificate.
func certificateText(data []byte) (string, bool) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if c, err := x509.ParseCertificate(block.Bytes); err == nil {
			certs = append(certs, c)
		}
	}
	if len(certs) == 0 {
		c, err := x509.ParseCertificate(data)
		if err != nil {
			return "", false
		}
		certs = append(certs, c)
	}

	var b strings.Builder
	for _, c := range certs {
		writeCertificate(&b, c)
	}
	return b.String(), true
}

func writeCertificate(b *strings.Builder, c *x509.Certificate) {
	fmt.Fprintf(b, "Certificate:\n")
	fmt.Fprintf(b, "    Version: %d\n", c.Version)
	fmt.Fprintf(b, "    Serial Number: %s\n", c.SerialNumber)
	fmt.Fprintf(b, "    Signature Algorithm: %s\n", c.SignatureAlgorithm)
	fmt.Fprintf(b, "    Issuer: %s\n", c.Issuer)
	fmt.Fprintf(b, "    Validity\n")
	fmt.Fprintf(b, "        Not Before: %s\n", c.NotBefore.UTC().Format(certTimeLayout))
	fmt.Fprintf(b, "        Not After : %s\n", c.NotAfter.UTC().Format(certTimeLayout))
	fmt.Fprintf(b, "    Subject: %s\n", c.Subject)
	fmt.Fprintf(b, "    Public Key Algorithm: %s\n", c.PublicKeyAlgorithm)
	if c.IsCA {
		fmt.Fprintf(b, "    CA: true\n")
	}

	var san []string
	for _, d := range c.DNSNames {
		san = append(san, "DNS:"+d)
	}
	for _, ip := range c.IPAddresses {
		san = append(san, "IP Address:"+ip.String())
	}
	for _, e := range c.EmailAddresses {
		san = append(san, "email:"+e)
	}
	for _, u := range c.URIs {
		san = append(san, "URI:"+u.String())
	}
	if len(san) > 0 {
		fmt.Fprintf(b, "    Subject Alternative Name:\n        %s\n", strings.Join(san, ", "))
	}
	if !c.NotAfter.IsZero() && c.NotAfter.Before(time.Now()) {
		fmt.Fprintf(b, "    Expired: true\n")
	}
}
