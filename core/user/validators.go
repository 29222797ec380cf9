package user

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/edulab/lectura/core"
)

var (
	instEmailTag   = "inst_email"
	instEmailText  = "must be a valid institutional email address"
	instEmailRegex *regexp.Regexp

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"
)

func init() {
	instEmailRegex = regexp.MustCompile(
		`(?i)^[a-zA-Z0-9._%+\-]+@` + regexp.QuoteMeta(core.Conf.Login.EmailDomain) + `$`,
	)

	// register validators
	_ = core.Validate.RegisterValidation(instEmailTag, instEmailValidation)
	core.RegisterCustomTranslation(instEmailTag, instEmailText)

	core.Validate.RegisterStructValidation(userStructValidation, NewStudent{})
	core.Validate.RegisterStructValidation(userStructValidation, ChangePassword{})
	core.Validate.RegisterStructValidation(userStructValidation, ResetUserPassword{})
	core.RegisterCustomTranslation(pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(pwdAttrSimTag, pwdAttrSimText)
}

// Custom Validators

// instEmailValidation checks the organization's address allow-list; case-insensitive.
func instEmailValidation(fl validator.FieldLevel) bool {
	return MatchesInstitutionalEmail(fl.Field().String())
}

// MatchesInstitutionalEmail reports whether email belongs to the allowed domain.
func MatchesInstitutionalEmail(email string) bool {
	return instEmailRegex.MatchString(email)
}

// userStructValidation applies the password policy wherever a new password is set.
func userStructValidation(sl validator.StructLevel) {
	switch data := sl.Current().Interface().(type) {
	case NewStudent:
		validatePassword(data.Password, data.FirstName+" "+data.LastName, data.Email, sl)
	case ChangePassword:
		validatePassword(data.Password, "", "", sl)
	case ResetUserPassword:
		validatePassword(data.Password, "", "", sl)
	}
}

// validatePassword applies the password policy to the provided password:
// - minLen: 8
// - no whitespace
// - not entirely numeric
// - not similar to the user's name/email
func validatePassword(pwd, name, email string, sl validator.StructLevel) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	pwdLen := len(pwd)
	if pwdLen < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}

	var digitCount int
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}
	if digitCount == pwdLen {
		reportErr(pwdNotAllNumTag)
		return
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(pass, ""), strings.Split(usrAttr, "")).QuickRatio()
	}
	if getRatio(pwd, name) >= pwdMaxSim || getRatio(pwd, email) >= pwdMaxSim {
		reportErr(pwdAttrSimTag)
	}
}
