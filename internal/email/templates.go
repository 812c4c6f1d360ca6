package email

import (
	"fmt"
	"html"
)

func confirmationBody(callbackURL string) string {
	u := html.EscapeString(callbackURL)
	return fmt.Sprintf(`<p>Welcome! Please confirm your email address.</p>
<p><a href=%q>Confirm email</a></p>
<p>If the link does not work, copy this address into your browser:<br>%s</p>
<p>If you did not create an account, you can ignore this message.</p>`, u, u)
}

func passwordResetBody(callbackURL string) string {
	u := html.EscapeString(callbackURL)
	return fmt.Sprintf(`<p>We received a request to reset your password.</p>
<p><a href=%q>Reset password</a></p>
<p>If the link does not work, copy this address into your browser:<br>%s</p>
<p>The link expires in one hour. If you did not request a reset, you can ignore this message.</p>`, u, u)
}
