package accounts

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

// buildLink composes the link embedded in outbound emails. Both redemption
// endpoints consume exactly two query parameters: email and token.
func buildLink(baseURL, path, email, tok string) string {
	query := url.Values{}
	query.Set("email", email)
	query.Set("token", tok)
	return strings.TrimSuffix(baseURL, "/") + path + "?" + query.Encode()
}

func verificationEmail(baseURL, email, tok, firstName string) (subject, body string) {
	link := buildLink(baseURL, "/auth/verify-email", email, tok)
	subject = "BestShop - Verify Your Email Address"
	body = fmt.Sprintf(`
		<h2>Welcome to BestShop, %s!</h2>
		<p>Thank you for registering with us. Please verify your email address by clicking the link below:</p>
		<p><a href='%s'>Verify Email Address</a></p>
		<p>If you didn't create this account, please ignore this email.</p>
		<p>Best regards,<br>The BestShop Team</p>`, html.EscapeString(firstName), link)
	return subject, body
}

func resetEmail(baseURL, email, tok string) (subject, body string) {
	link := buildLink(baseURL, "/auth/reset-password", email, tok)
	subject = "BestShop - Password Reset Request"
	body = fmt.Sprintf(`
		<h2>Password Reset Request</h2>
		<p>You requested to reset your password for your BestShop account. Please click the link below to set a new password:</p>
		<p><a href='%s'>Reset Your Password</a></p>
		<p>This link will expire in 24 hours.</p>
		<p>If you didn't request this password reset, please ignore this email or contact support if you have concerns.</p>
		<p>Best regards,<br>The BestShop Team</p>`, link)
	return subject, body
}
