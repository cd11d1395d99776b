package main

import "crypto/subtle"

// CSRFToken returns the session's anti-forgery token, minting a 256-bit
// random one on first use. The caller is responsible for saving the session
// so a fresh token survives the response.
func (sc *sessionContext) CSRFToken() (string, error) {
	if token, ok := sc.s.Values[sessionKeyCSRF].(string); ok && token != "" {
		return token, nil
	}
	token, err := genToken(32)
	if err != nil {
		return "", err
	}
	sc.s.Values[sessionKeyCSRF] = token
	return token, nil
}

// VerifyCSRF fails closed: no stored token, an empty submission or any
// mismatch is a rejection. The comparison is constant-time.
func (sc *sessionContext) VerifyCSRF(submitted string) bool {
	stored, ok := sc.s.Values[sessionKeyCSRF].(string)
	if !ok || stored == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}
