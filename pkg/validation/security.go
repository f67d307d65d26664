package validation

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// dangerousSubstrings are rejected verbatim (case-insensitive) in any text
// that may end up in a shell-capable artifact.
var dangerousSubstrings = []string{
	"rm -rf /",
	"rm -rf ~",
	"rm -rf $home",
	"rm -rf *",
	"mkfs",
	"dd if=",
	":(){ :|:& };:",
	"> /dev/sd",
	"> /dev/nvme",
	"chmod -r 777 /",
	"shutdown -h",
	"/etc/shadow",
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(curl|wget)\b[^|\n]*\|\s*(sudo\s+)?(ba|z|k)?sh\b`),
	regexp.MustCompile(`(?i)\beval\s+"?\$\(\s*(curl|wget)\b`),
	regexp.MustCompile(`(?i)base64\s+(-d|--decode)[^|\n]*\|\s*(ba|z)?sh\b`),
	regexp.MustCompile(`(?i)\bsudo\s+rm\b`),
}

func securityError(format string, args ...any) error {
	return errors.Wrapf(ErrSecurityViolation, format, args...)
}

// ValidateName checks an artifact name. Names become path components, so
// traversal and separators are rejected before the pattern check.
func ValidateName(name string) error {
	if name == "" {
		return securityError("name cannot be empty")
	}
	if strings.Contains(name, "..") {
		return securityError("name %q contains path traversal", name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return securityError("name %q contains path separators or NUL bytes", name)
	}
	if len(name) > MaxNameLength {
		return errors.Wrapf(ErrValidation, "name %q exceeds %d characters", name, MaxNameLength)
	}
	if !nameRegex.MatchString(name) {
		return errors.Wrapf(ErrValidation, "name %q must match %s", name, nameRegex.String())
	}
	return nil
}

// ValidateCommandName checks a command name. Commands may be namespaced
// with ':' ("git:commit"); each segment must be a valid artifact name.
func ValidateCommandName(name string) error {
	if name == "" {
		return securityError("name cannot be empty")
	}
	for _, segment := range strings.Split(name, ":") {
		if err := ValidateName(segment); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePath checks that path has no traversal and, once cleaned and made
// absolute, stays inside root.
func ValidatePath(root, path string) error {
	if strings.Contains(path, "..") {
		return securityError("path %q contains path traversal", path)
	}
	if strings.ContainsRune(path, 0) {
		return securityError("path %q contains NUL bytes", path)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve root %q", root)
	}
	absPath := path
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(absRoot, absPath)
	}
	absPath = filepath.Clean(absPath)

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return securityError("path %q escapes %q", path, root)
	}
	return nil
}

// ValidateShellText rejects text containing known destructive commands.
func ValidateShellText(text string) error {
	lower := strings.ToLower(text)
	for _, s := range dangerousSubstrings {
		if strings.Contains(lower, s) {
			return securityError("text contains dangerous command %q", s)
		}
	}
	for _, re := range dangerousPatterns {
		if m := re.FindString(text); m != "" {
			return securityError("text contains dangerous command %q", m)
		}
	}
	return nil
}

// ValidateText checks a free-form field. A max of 0 disables the length check.
func ValidateText(field, text string, max int) error {
	if max > 0 && len(text) > max {
		return errors.Wrapf(ErrValidation, "%s exceeds %d characters", field, max)
	}
	for _, r := range text {
		if r == 0 {
			return securityError("%s contains NUL bytes", field)
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return securityError("%s contains control character %U", field, r)
		}
	}
	return nil
}
