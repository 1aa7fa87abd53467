package notify

import (
	"fmt"
	"net/url"
)

// ConfirmationMessage builds the email carrying the account activation link.
func ConfirmationMessage(baseURL, toEmail, toName, accountID, token string) Message {
	link := actionLink(baseURL, "/account/confirm", accountID, token)
	return Message{
		To:      toEmail,
		ToName:  toName,
		Subject: "Shopping - Email Confirmation",
		Body: "<h1>Shopping - Email Confirmation</h1>" +
			"<p>To enable your account, please click the following link:</p>" +
			fmt.Sprintf("<p><a href=%q>Confirm Email</a></p>", link),
	}
}

// PasswordResetMessage builds the email carrying the password reset link.
func PasswordResetMessage(baseURL, toEmail, toName, accountID, token string) Message {
	link := actionLink(baseURL, "/account/password/reset", accountID, token)
	return Message{
		To:      toEmail,
		ToName:  toName,
		Subject: "Shopping - Password Recovery",
		Body: "<h1>Shopping - Password Recovery</h1>" +
			"<p>To reset your password, please click the following link:</p>" +
			fmt.Sprintf("<p><a href=%q>Reset Password</a></p>", link),
	}
}

func actionLink(baseURL, path, accountID, token string) string {
	q := url.Values{}
	q.Set("accountId", accountID)
	q.Set("token", token)
	return baseURL + path + "?" + q.Encode()
}
