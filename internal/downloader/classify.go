package downloader

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
)

// Classify turns a transport error into a TransportError of the matching kind.
// ctx is the context the transport ran under; its state wins over the error text.
func Classify(ctx context.Context, err error) *crawl.TransportError {
	var transportErr *crawl.TransportError
	if errors.As(err, &transportErr) {
		return transportErr
	}
	return crawl.NewTransportError(classifyKind(ctx, err), err)
}

func classifyKind(ctx context.Context, err error) crawl.ErrorKind {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return crawl.KindTimeout
	case context.Canceled:
		return crawl.KindCancelled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return crawl.KindDNSFailure
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return crawl.KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return crawl.KindCancelled
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return crawl.KindConnectionRefused
	}
	if isTLSError(err) {
		return crawl.KindTLSError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return crawl.KindTimeout
	}
	return crawl.KindOther
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidCert x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert)
}
