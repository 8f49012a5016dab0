package sanitize

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/minio/minio-go/v7/pkg/s3utils"
	"golang.org/x/text/unicode/norm"
)

const (
	MinBucketNameLength = 3
	MaxBucketNameLength = 63
	MaxRegionLength     = 32
	MaxEndpointLength   = 2048
)

var (
	bucketNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)
	regionRE     = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)
)

// ValidateKey re-checks a cleaned object key. It rejects anything that
// still carries a traversal segment, an encoded traversal, a control byte or
// a backslash. It is defense in depth and never replaces Path.
func ValidateKey(key string) error {
	if key == "" {
		return invalidf("object key must not be empty")
	}
	if len(key) > MaxKeyLength {
		return invalidf("object key exceeds maximum length of %d", MaxKeyLength)
	}
	if !utf8.ValidString(key) {
		return invalidf("object key contains invalid UTF-8")
	}
	if strings.HasPrefix(key, Separator) {
		return invalidf("object key must not start with %q", Separator)
	}
	if strings.Contains(key, `\`) {
		return invalidf("object key contains backslash")
	}
	for _, r := range key {
		if isControl(r) {
			return invalidf("object key contains control character")
		}
	}
	if encodedTraversal.MatchString(key) {
		return invalidf("object key contains encoded traversal")
	}
	folded := norm.NFKC.String(key)
	if strings.Contains(folded, "..") || strings.Contains(folded, `\`) {
		return invalidf("object key contains traversal sequence")
	}
	for _, seg := range strings.Split(strings.TrimSuffix(key, Separator), Separator) {
		if seg == "" {
			return invalidf("object key contains empty segment")
		}
		if seg == "." {
			return invalidf("object key contains dot segment")
		}
		if len(seg) > MaxSegmentLength {
			return invalidf("object key segment exceeds maximum length of %d", MaxSegmentLength)
		}
	}
	if err := s3utils.CheckValidObjectName(key); err != nil {
		return invalidf("object key: %v", err)
	}
	return nil
}

// ValidateBucketName enforces the S3 bucket naming grammar: 3 to 63
// lowercase letters, digits, dots and hyphens, starting and ending with a
// letter or digit, no adjacent punctuation, not an IP address and none of
// the reserved prefixes and suffixes.
func ValidateBucketName(name string) error {
	if len(name) < MinBucketNameLength || len(name) > MaxBucketNameLength {
		return invalidf("bucket name must be between %d and %d characters", MinBucketNameLength, MaxBucketNameLength)
	}
	if !bucketNameRE.MatchString(name) {
		return invalidf("bucket name %q contains invalid characters", Display(name))
	}
	for _, seq := range []string{"..", ".-", "-."} {
		if strings.Contains(name, seq) {
			return invalidf("bucket name contains forbidden sequence %q", seq)
		}
	}
	if net.ParseIP(name) != nil {
		return invalidf("bucket name must not be an IP address")
	}
	for _, prefix := range []string{"xn--", "sthree-", "amzn-s3-demo-"} {
		if strings.HasPrefix(name, prefix) {
			return invalidf("bucket name must not start with %q", prefix)
		}
	}
	for _, suffix := range []string{"-s3alias", "--ol-s3", "--x-s3"} {
		if strings.HasSuffix(name, suffix) {
			return invalidf("bucket name must not end with %q", suffix)
		}
	}
	if err := s3utils.CheckValidBucketNameStrict(name); err != nil {
		return invalidf("bucket name: %v", err)
	}
	return nil
}

// ValidateRegion accepts lowercase alphanumeric region identifiers with
// single hyphens, such as "us-east-1", "eu-central-2" or "auto".
func ValidateRegion(region string) error {
	if len(region) < 2 || len(region) > MaxRegionLength {
		return invalidf("region must be between 2 and %d characters", MaxRegionLength)
	}
	if !regionRE.MatchString(region) {
		return invalidf("region %q contains invalid characters", Display(region))
	}
	if strings.Contains(region, "--") {
		return invalidf("region contains consecutive hyphens")
	}
	return nil
}

// ValidateEndpoint accepts an absolute https URL naming a host, with no
// credentials, query or fragment. Plain http is allowed only for loopback
// hosts.
func ValidateEndpoint(raw string) error {
	if raw == "" {
		return invalidf("endpoint must not be empty")
	}
	if len(raw) > MaxEndpointLength {
		return invalidf("endpoint exceeds maximum length of %d", MaxEndpointLength)
	}
	for _, r := range raw {
		if isControl(r) || r == ' ' || r == '\\' {
			return invalidf("endpoint contains forbidden character")
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalidf("endpoint is not a valid URL")
	}
	if u.Host == "" || u.Hostname() == "" {
		return invalidf("endpoint must include a host")
	}
	if u.User != nil {
		return invalidf("endpoint must not embed credentials")
	}
	if u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return invalidf("endpoint must not include a query or fragment")
	}
	if u.Path != "" && u.Path != Separator {
		return invalidf("endpoint must not include a path")
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopback(u.Hostname()) {
			return invalidf("plain http is only allowed for loopback endpoints")
		}
	default:
		return invalidf("endpoint scheme %q is not allowed", Display(u.Scheme))
	}
	return nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
