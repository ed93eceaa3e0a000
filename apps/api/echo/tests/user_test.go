package tests

import (
	"net/http"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/kikundi/apps/api/echo"
	"github.com/trezcool/kikundi/core/user"
	testutil "github.com/trezcool/kikundi/tests"
)

func Test_userApi_login(t *testing.T) {
	e := setup(t)
	testutil.CreateUser(t, e.usrRepo, "Alice", "alice", "alice@uni.test", strongPwd, user.RoleStudent, true)
	testutil.CreateUser(t, e.usrRepo, "N Dog", "ndog", "ndog@uni.test", strongPwd, user.RoleStudent, false)
	testutil.CreateUser(t, e.usrRepo, "Synced", "synced", "synced@uni.test", "", user.RoleStudent, true)

	body := func(uname, pwd string) []byte {
		return marshalObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}

	runTests(t, e, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/auth/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, fieldsErr{Error: map[string]string{
				"username": "this field is required",
				"password": "this field is required",
			}}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/auth/login", body: body("nobody", strongPwd),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/auth/login", body: body("alice", "nope"),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "no password set", method: http.MethodPost, path: "/v1/auth/login", body: body("synced", ""),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/auth/login", body: body("ndog", strongPwd),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("success (email, any case)", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/auth/login", "", body(" ALICE@uni.test", strongPwd))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.LoginResponse
		decode(t, rec, &resp)
		require.NotEmpty(t, resp.Token)

		rec = e.do(http.MethodGet, "/v1/auth/me", resp.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		var me user.User
		decode(t, rec, &me)
		assert.Equal(t, "alice", me.Username)
		assert.NotNil(t, me.LastLogin)
	})
}

func Test_userApi_tokens(t *testing.T) {
	e := setup(t)
	alice := testutil.CreateUser(t, e.usrRepo, "Alice", "alice", "alice@uni.test", strongPwd, user.RoleStudent, true)
	token := getToken(t, alice)

	runTests(t, e, []httpTest{
		{name: "me: auth required", path: "/v1/auth/me", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "me: invalid token", path: "/v1/auth/me", token: "not.a.jwt",
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{name: "refresh: auth required", method: http.MethodPost, path: "/v1/auth/token-refresh", wantCode: http.StatusUnauthorized},
	})

	t.Run("refresh", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/auth/token-refresh", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp echoapi.LoginResponse
		decode(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("refresh expired", func(t *testing.T) {
		claims := echoapi.GetUserClaims(conf, alice, time.Now().Add(-48*time.Hour).Unix())
		old, err := echoapi.GenerateToken(conf, claims)
		require.NoError(t, err)
		rec := e.do(http.MethodPost, "/v1/auth/token-refresh", old)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "refresh has expired"})}, rec)
	})
}

func Test_userApi_register(t *testing.T) {
	e := setup(t)
	testutil.CreateUser(t, e.usrRepo, "Alice", "alice", "alice@uni.test", "", user.RoleStudent, true)

	newUser := func(uname, email, role, pwd string) []byte {
		return marshalObj(t, user.NewUser{Name: "Bob Student", Username: uname, Email: email, Role: role, Password: pwd, PasswordConfirm: pwd})
	}

	runTests(t, e, []httpTest{
		{
			name: "username taken", method: http.MethodPost, path: "/v1/auth/register", body: newUser("alice", "", "", strongPwd),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, fieldsErr{Error: map[string]string{"username": user.ErrUsernameExists.Error()}}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/v1/auth/register", body: newUser("bob", "bob@uni.test", "", "password"),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "no username nor email", method: http.MethodPost, path: "/v1/auth/register", body: newUser("", "", "", strongPwd),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, fieldsErr{Error: map[string]string{
				"username": "one of username or email is required",
				"email":    "one of username or email is required",
			}}),
		},
	})

	t.Run("always a student", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/auth/register", "", newUser("bob", "bob@uni.test", user.RoleAdmin, strongPwd))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var usr user.User
		decode(t, rec, &usr)
		assert.Equal(t, user.RoleStudent, usr.Role)
		assert.True(t, usr.IsActive)
	})
}

func Test_userApi_query(t *testing.T) {
	e := setup(t)
	base := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

	alice := testutil.CreateUser(t, e.usrRepo, "Alice", "alice", "alice@uni.test", "", user.RoleStudent, true, base)
	bob := testutil.CreateUser(t, e.usrRepo, "Bob", "bob", "bob@uni.test", "", user.RoleStudent, false, base.Add(time.Hour))
	prof := testutil.CreateUser(t, e.usrRepo, "Ada Prof", "ada", "ada@uni.test", "", user.RoleInstructor, true, base.Add(2*time.Hour))
	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "admin@uni.test", "", user.RoleAdmin, true, base.Add(3*time.Hour))
	adminToken := getToken(t, admin)

	path := func(params ...string) string {
		v := make(url.Values)
		for i := 0; i+1 < len(params); i += 2 {
			v.Add(params[i], params[i+1])
		}
		return "/v1/users?" + v.Encode()
	}

	runTests(t, e, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "admin required", path: "/v1/users", token: getToken(t, prof), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
	})

	tests := []struct {
		name string
		path string
		want []user.User
	}{
		{name: "all, latest first", path: "/v1/users", want: []user.User{admin, prof, bob, alice}},
		{name: "search", path: path("search", "AL"), want: []user.User{alice}},
		{name: "role", path: path("role", user.RoleStudent), want: []user.User{bob, alice}},
		{name: "roles", path: path("role", user.RoleStudent, "role", user.RoleAdmin), want: []user.User{admin, bob, alice}},
		{name: "role (unknown)", path: path("role", "lol"), want: []user.User{}},
		{name: "is_active=false", path: path("is_active", "false"), want: []user.User{bob}},
		{
			name: "created range", path: path("created_from", base.Add(30*time.Minute).Format(time.RFC3339), "created_to", base.Add(150*time.Minute).Format(time.RFC3339)),
			want: []user.User{prof, bob},
		},
		{name: "order by name", path: path("ordering", "name"), want: []user.User{prof, admin, alice, bob}},
		{name: "order by -is_active,created_at", path: path("ordering", "-is_active,created_at"), want: []user.User{alice, prof, admin, bob}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodGet, tt.path, adminToken)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			want := make([]string, 0, len(tt.want))
			for _, u := range tt.want {
				want = append(want, u.ID)
			}
			assert.Equal(t, want, userIDs(t, rec))
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	e := setup(t)
	alice := testutil.CreateUser(t, e.usrRepo, "Alice", "alice", "alice@uni.test", "", user.RoleStudent, true)
	bob := testutil.CreateUser(t, e.usrRepo, "Bob", "bob", "bob@uni.test", "", user.RoleStudent, true)
	prof := testutil.CreateUser(t, e.usrRepo, "Ada Prof", "ada", "ada@uni.test", "", user.RoleInstructor, true)
	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "admin@uni.test", "", user.RoleAdmin, true)
	aliceToken, adminToken := getToken(t, alice), getToken(t, admin)

	runTests(t, e, []httpTest{
		{name: "retrieve self", path: "/v1/users/" + alice.ID, token: aliceToken, wantCode: http.StatusOK},
		{name: "retrieve other", path: "/v1/users/" + bob.ID, token: aliceToken, wantCode: http.StatusNotFound, wantData: marshalObj(t, errNotFound)},
		{name: "retrieve unknown (admin)", path: "/v1/users/lol", token: adminToken, wantCode: http.StatusNotFound},
		{
			name: "student cannot change role", method: http.MethodPut, path: "/v1/users/" + alice.ID, token: aliceToken,
			body: []byte(`{"role": "admin"}`), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "instructor cannot create admins", method: http.MethodPost, path: "/v1/users", token: getToken(t, prof),
			body: []byte(`{}`), wantCode: http.StatusForbidden,
		},
		{
			name: "admin cannot delete themselves", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{name: "roles", path: "/v1/users/roles", token: aliceToken, wantCode: http.StatusOK, wantData: marshalObj(t, user.Roles)},
	})

	t.Run("update self", func(t *testing.T) {
		rec := e.do(http.MethodPut, "/v1/users/"+alice.ID, aliceToken, []byte(`{"name": "Alice B."}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		decode(t, rec, &usr)
		assert.Equal(t, "Alice B.", usr.Name)
		assert.Equal(t, "alice", usr.Username)
	})

	t.Run("admin promotes & deletes", func(t *testing.T) {
		rec := e.do(http.MethodPut, "/v1/users/"+bob.ID, adminToken, []byte(`{"role": "instructor"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		decode(t, rec, &usr)
		assert.Equal(t, user.RoleInstructor, usr.Role)

		rec = e.do(http.MethodDelete, "/v1/users/"+bob.ID, adminToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = e.do(http.MethodGet, "/v1/users/"+bob.ID, adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("admin creates an instructor", func(t *testing.T) {
		body := marshalObj(t, user.NewUser{Name: "Grace", Username: "grace", Role: user.RoleInstructor, Password: strongPwd, PasswordConfirm: strongPwd})
		rec := e.do(http.MethodPost, "/v1/users", adminToken, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	e := setup(t)
	alice := testutil.CreateUser(t, e.usrRepo, "Alice Wanjiru", "alice", "alice@uni.test", strongPwd, user.RoleStudent, true)
	testutil.CreateUser(t, e.usrRepo, "N Dog", "ndog", "ndog@uni.test", strongPwd, user.RoleStudent, false)

	sentMsg := marshalObj(t, echoapi.MessageResponse{
		Message: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
	resetBody := func(email string) []byte {
		return marshalObj(t, echoapi.PasswordResetRequest{Email: email})
	}

	runTests(t, e, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/v1/auth/password-reset", body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, fieldsErr{Error: map[string]string{"email": "this field is required"}}),
		},
		{
			name: "invalid email", method: http.MethodPost, path: "/v1/auth/password-reset", body: resetBody("lol"),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, fieldsErr{Error: map[string]string{"email": "email must be a valid email address"}}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/v1/auth/password-reset", body: resetBody("nobody@uni.test"),
			wantCode: http.StatusOK, wantData: sentMsg,
		},
		{
			name: "inactive account", method: http.MethodPost, path: "/v1/auth/password-reset", body: resetBody("ndog@uni.test"),
			wantCode: http.StatusOK, wantData: sentMsg,
		},
	})
	require.Empty(t, e.mail.SentMessages(), "no email for unknown or inactive accounts")

	rec := e.do(http.MethodPost, "/v1/auth/password-reset", "", resetBody(" Alice@Uni.test "))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: sentMsg}, rec)

	sent := e.mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@uni.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Alice Wanjiru")
	assert.Contains(t, sent[0].TextContent, "valid for 3 days")
	match := regexp.MustCompile(`http://kikundi\.test/password-reset/([^/\s]+)/([^/\s]+)`).FindStringSubmatch(sent[0].TextContent)
	require.Len(t, match, 3, sent[0].TextContent)
	assert.Contains(t, sent[0].HTMLContent, match[0])
	uid, token := match[1], match[2]

	confirm := func(uid, token, pwd, pwdConfirm string) []byte {
		return marshalObj(t, user.ResetUserPassword{UID: uid, Token: token, Password: pwd, PasswordConfirm: pwdConfirm})
	}
	newPwd := "Mvua-Kubwa#77"

	runTests(t, e, []httpTest{
		{
			name: "confirm: required fields", method: http.MethodPost, path: "/v1/auth/password-reset-confirm", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, fieldsErr{Error: map[string]string{
				"uid":              "this field is required",
				"token":            "this field is required",
				"password":         "this field is required",
				"password_confirm": "this field is required",
			}}),
		},
		{
			name: "confirm: bad token", method: http.MethodPost, path: "/v1/auth/password-reset-confirm",
			body:     confirm(uid, token+"x", newPwd, newPwd),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, fieldsErr{Error: map[string]string{"token": "invalid token"}}),
		},
		{
			name: "confirm: unknown user", method: http.MethodPost, path: "/v1/auth/password-reset-confirm",
			body:     confirm(user.EncodeUID(user.User{ID: "nope"}), token, newPwd, newPwd),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, fieldsErr{Error: map[string]string{"token": "invalid token"}}),
		},
		{
			name: "confirm: weak password", method: http.MethodPost, path: "/v1/auth/password-reset-confirm",
			body:     confirm(uid, token, "12345678", "12345678"),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, fieldsErr{Error: map[string]string{"password": "password cannot be entirely numeric"}}),
		},
		{
			name: "confirm: passwords mismatch", method: http.MethodPost, path: "/v1/auth/password-reset-confirm",
			body: confirm(uid, token, newPwd, strongPwd), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("confirm", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/auth/password-reset-confirm", "", confirm(uid, token, newPwd, newPwd))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		login := func(pwd string) int {
			return e.do(http.MethodPost, "/v1/auth/login", "", marshalObj(t, echoapi.LoginRequest{Username: alice.Username, Password: pwd})).Code
		}
		assert.Equal(t, http.StatusBadRequest, login(strongPwd))
		assert.Equal(t, http.StatusOK, login(newPwd))

		// single use
		rec = e.do(http.MethodPost, "/v1/auth/password-reset-confirm", "", confirm(uid, token, "Jua-Kali#2025", "Jua-Kali#2025"))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, fieldsErr{Error: map[string]string{"token": "invalid token"}}),
		}, rec)
	})
}
