// Package credentials carga y valida el certificado X.509 y la llave privada que ARCA exige para el WSAA.
package credentials

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

var (
	ErrNoCertificate = errors.New("credentials: no se encontró un certificado X.509")
	ErrNoPrivateKey  = errors.New("credentials: no se encontró una llave privada soportada")
)

// ParseCertificate acepta PEM (bloque CERTIFICATE), DER o PKCS#12 sin contraseña.
// Con varios bloques PEM devuelve el primer certificado.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	rest := data
	sawPEM := false
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		sawPEM = true
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("credentials: certificado PEM: %w", err)
		}
		return cert, nil
	}
	if sawPEM {
		return nil, ErrNoCertificate
	}

	if cert, err := x509.ParseCertificate(data); err == nil {
		return cert, nil
	}
	if _, cert, err := pkcs12.Decode(data, ""); err == nil {
		return cert, nil
	}
	return nil, ErrNoCertificate
}

// ParsePrivateKey acepta PEM (RSA PRIVATE KEY, PRIVATE KEY, EC PRIVATE KEY), DER (PKCS#8, PKCS#1, SEC 1)
// o PKCS#12 sin contraseña. Llaves PEM cifradas no se soportan.
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	rest := data
	sawPEM := false
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		sawPEM = true
		switch block.Type {
		case "RSA PRIVATE KEY", "PRIVATE KEY", "EC PRIVATE KEY":
			if _, encrypted := block.Headers["DEK-Info"]; encrypted {
				return nil, fmt.Errorf("credentials: llave PEM cifrada: %w", ErrNoPrivateKey)
			}
			return parseKeyDER(block.Bytes)
		}
	}
	if sawPEM {
		return nil, ErrNoPrivateKey
	}

	if key, err := parseKeyDER(data); err == nil {
		return key, nil
	}
	if priv, _, err := pkcs12.Decode(data, ""); err == nil {
		if s, ok := priv.(crypto.Signer); ok {
			return s, nil
		}
	}
	return nil, ErrNoPrivateKey
}

func parseKeyDER(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if s, ok := key.(crypto.Signer); ok {
			return s, nil
		}
		return nil, fmt.Errorf("credentials: tipo de llave %T: %w", key, ErrNoPrivateKey)
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, ErrNoPrivateKey
}

// LoadPair parsea certificado y llave. Si keyData está vacío la llave se busca en certData
// (PEM combinado o bundle PKCS#12).
func LoadPair(certData, keyData []byte) (*x509.Certificate, crypto.Signer, error) {
	cert, err := ParseCertificate(certData)
	if err != nil {
		return nil, nil, err
	}
	if len(keyData) == 0 {
		keyData = certData
	}
	key, err := ParsePrivateKey(keyData)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}
