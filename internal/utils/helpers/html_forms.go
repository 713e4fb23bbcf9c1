package helpers

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const PasswordResetSubject = "Reset your SkinVault password"

// display_name приходит из профиля: в письме только текст, без разметки.
var namePolicy = bluemonday.StrictPolicy()

func greeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Hello,"
	}
	return "Hello, " + name + ","
}

// BuildPasswordResetHTML: письмо со ссылкой сброса. Ссылка вставляется без изменений.
func BuildPasswordResetHTML(name, link string) string {
	return fmt.Sprintf(`
<html>
  <body style="font-family:Arial,sans-serif; background:#0f1115;">
    <table width="100%%" cellpadding="0" cellspacing="0" bgcolor="#0f1115">
      <tr>
        <td align="center" style="padding:32px 0;">
          <table width="500" bgcolor="#1a1d24" cellpadding="24" cellspacing="0" style="border-radius:8px; box-shadow:0 1px 6px #000;">
            <tr>
              <td>
                <h2 style="color:#f5a623; margin-top:0;">Password reset</h2>
                <div style="font-size:16px; color:#e6e6e6;">%s</div>
                <p style="margin:24px 0; color:#e6e6e6;">
                  We received a request to reset the password for your SkinVault account.
                  The link is valid for 1 hour and can be used once.
                </p>
                <p style="margin:24px 0;">
                  <a href="%s" style="display:inline-block;padding:12px 24px;background:#f5a623;color:#0f1115;text-decoration:none;border-radius:6px;font-weight:600;">Reset password</a>
                </p>
                <p style="font-size:12px; color:#999;">If the button does not work, copy this link: %s</p>
                <hr style="margin:32px 0 16px 0; border:0; border-top:1px solid #333;">
                <div style="font-size:12px; color:#999;">If you did not request a reset, ignore this email. Your password stays the same.</div>
              </td>
            </tr>
          </table>
        </td>
      </tr>
    </table>
  </body>
</html>
`, namePolicy.Sanitize(greeting(name)), link, link)
}

func BuildPasswordResetText(name, link string) string {
	return fmt.Sprintf(`%s

We received a request to reset the password for your SkinVault account.
Open the link below to choose a new password (valid for 1 hour, single use):

%s

If you did not request a reset, ignore this email. Your password stays the same.
`, greeting(name), link)
}
