package emails

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"glued hashtag", "john.doe@gmail.comhashtag", "john.doe@gmail.com", true},
		{"whitelisted long tld", "someone@company.community", "someone@company.community", true},
		{"no dot in domain", "bad-email@nodot", "", false},
		{"glued hiring", "jobs@acme.iohiring", "jobs@acme.io", true},
		{"glued word after short tld", "hr@firm.comregards", "hr@firm.com", true},
		{"short tld with glued prose", "jane@acme.cowe", "jane@acme.co", true},
		{"literal email tld kept", "me@brand.email", "me@brand.email", true},
		{"info kept", "hello@startup.info", "hello@startup.info", true},
		{"uppercase and punctuation", "(Jane@Acme.CO).", "jane@acme.co", true},
		{"no at sign", "jane.acme.co", "", false},
		{"empty local part", "@acme.co", "", false},
		{"plain address", "bob@acme.co", "bob@acme.co", true},
		{"subdomain", "talent@mail.bigcorp.com", "talent@mail.bigcorp.com", true},
		{"country tld glued", "ravi@tcs.inwhatsapp", "ravi@tcs.in", true},
		{"exact com kept", "jane@acme.com", "jane@acme.com", true},
		{"exact org kept", "team@ngo.org", "team@ngo.org", true},
		{"garbage label after tld", "hr@acme.com.hiring", "", false},
		{"capitalized garbage label", "jane@acme.io.Thanks", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Clean(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindAll(t *testing.T) {
	text := "Send CVs to jane@acme.co or to bob@acme.comhiring today"
	assert.Equal(t, []string{"jane@acme.co", "bob@acme.comhiring"}, FindAll(text))
	assert.Nil(t, FindAll("no addresses here"))
}

func TestFirst(t *testing.T) {
	email, ok := First("nothing", "reach me at x@nodot or hr@acme.comcontact")
	assert.True(t, ok)
	assert.Equal(t, "hr@acme.com", email)

	email, ok = First("Reach hr@acme.com.Hiring now", "or jane@acme.com")
	assert.True(t, ok)
	assert.Equal(t, "jane@acme.com", email)

	_, ok = First("", "still nothing")
	assert.False(t, ok)
}
