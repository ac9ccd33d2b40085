package mailer

import "html/template"

var codeTemplate = template.Must(template.New("code").Parse(`<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">{{.Brand}} {{.Label}}</h2>
  <p>Hello {{.Name}},</p>
  <p>Use the code below to continue. It expires in 10 minutes.</p>
  <div style="background-color: #f5f5f5; padding: 20px; text-align: center; margin: 20px 0;">
    <h1 style="color: #333; letter-spacing: 8px; margin: 0;">{{.Code}}</h1>
  </div>
  {{if .Link}}<p><a href="{{.Link}}">Open the verification page</a></p>{{end}}
  <p style="color: #666; font-size: 14px;">If you did not request this code, you can ignore this email.</p>
</div>`))

var passwordChangedTemplate = template.Must(template.New("password_changed").Parse(`<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">{{.Brand}}</h2>
  <p>Hello {{.Name}},</p>
  <p>The password for your account was just changed.</p>
  <p style="color: #666; font-size: 14px;">If this was not you, reset your password immediately and contact support.</p>
</div>`))

var welcomeTemplate = template.Must(template.New("welcome").Parse(`<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Welcome to {{.Brand}}</h2>
  <p>Hello {{.Name}}, your email address is verified.</p>
  {{if .Link}}<p><a href="{{.Link}}">Find local services near you</a></p>{{end}}
</div>`))
