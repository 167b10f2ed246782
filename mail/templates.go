package mail

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"
)

// Message is a rendered notification.
type Message struct {
	Subject string
	HTML    string
}

const (
	SubjectVerification = "Confirm your email address"
	SubjectPasswordReset = "Reset your password"
	SubjectTwoFactor     = "Your two-factor authentication code"
)

var (
	linkTemplate = template.Must(template.New("link").Parse(
		`<p>{{.Intro}}</p><a href="{{.Link}}">{{.Label}}</a>`,
	))
	codeTemplate = template.Must(template.New("code").Parse(
		`<p>Your two-factor authentication code is: {{.Code}}</p>`,
	))
)

// Link joins baseURL and path and sets the token query parameter.
func Link(baseURL, path, token string) string {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// VerificationEmail renders the email confirmation message for link.
func VerificationEmail(link string) (Message, error) {
	return renderLink(SubjectVerification, "Click the link below to confirm your email address:", link, "Confirm email address")
}

// PasswordResetEmail renders the password reset message for link.
func PasswordResetEmail(link string) (Message, error) {
	return renderLink(SubjectPasswordReset, "Click the link below to reset your password:", link, "Reset password")
}

// TwoFactorEmail renders the message carrying a two-factor code.
func TwoFactorEmail(code string) (Message, error) {
	var buf bytes.Buffer
	if err := codeTemplate.Execute(&buf, struct{ Code string }{code}); err != nil {
		return Message{}, err
	}
	return Message{Subject: SubjectTwoFactor, HTML: buf.String()}, nil
}

func renderLink(subject, intro, link, label string) (Message, error) {
	var buf bytes.Buffer
	err := linkTemplate.Execute(&buf, struct {
		Intro string
		Link  template.URL
		Label string
	}{intro, template.URL(link), label})
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, HTML: buf.String()}, nil
}
