package attendance

import (
	"net/url"
	"strings"

	domain "kstu-mobile/internal/domain/attendance"
	xerrors "kstu-mobile/internal/pkg/errors"
)

// ParseQR validates a scanned payload against the expected authority and
// decomposes its path into campus/corpus/room. Any payload that is not a URL
// of that authority is rejected before anything else happens. Missing path
// segments degrade to empty fields rather than failing the scan.
func ParseQR(payload, authority string) (domain.Auditorium, error) {
	u, err := url.Parse(strings.TrimSpace(payload))
	if err != nil {
		return domain.Auditorium{}, xerrors.ErrInvalidQRCode
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.Auditorium{}, xerrors.ErrInvalidQRCode
	}
	if !strings.EqualFold(u.Host, authority) {
		return domain.Auditorium{}, xerrors.ErrInvalidQRCode
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	var aud domain.Auditorium
	if len(segments) > 0 {
		aud.Campus = segments[0]
	}
	if len(segments) > 1 {
		aud.Corpus = segments[1]
	}
	if len(segments) > 2 {
		aud.Room = segments[2]
	}
	return aud, nil
}
