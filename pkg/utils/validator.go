package utils

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateUsername checks account name rules: 3-20 characters, letters,
// digits and underscores only.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < 3 || n > 20 {
		return fmt.Errorf("用户名长度必须在3-20个字符之间")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("用户名只能包含字母、数字和下划线")
	}
	return nil
}

// ValidateDisplayName checks a person's display name: 2-20 characters.
func ValidateDisplayName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 20 {
		return fmt.Errorf("姓名长度必须在2-20个字符之间")
	}
	return nil
}

// ValidatePassword enforces the minimum password policy.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("密码长度至少6位")
	}
	if len(password) > 100 {
		return fmt.Errorf("密码长度不能超过100位")
	}
	return nil
}

// SanitizeString strips control characters from free-text input.
func SanitizeString(s string) string {
	return regexp.MustCompile(`[\x00-\x1f\x7f]`).ReplaceAllString(s, "")
}
