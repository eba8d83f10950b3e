package crud

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"microblog/domain"
	"microblog/errs"
)

const (
	// RememberTokenBytes is the number of random bytes in a remember token.
	RememberTokenBytes = 32
	// UsernameMaxLength is the maximum number of characters of a username.
	UsernameMaxLength = 150
)

// UserService manages Users. It also contains the part of the authentication system
// that handles database interactions and token creation / hashing. http/auth.go deals
// with requests and cookies. It implements the domain.UserService interface.
type UserService struct {
	userValidator
}

// userValidator runs validations on incoming User data.
// On success, it passes the data on to userGorm.
// Otherwise, it returns the error of the validation that has failed.
type userValidator struct {
	hmac          HMAC
	pepper        string
	emailRegex    *regexp.Regexp
	usernameRegex *regexp.Regexp
	userGorm
}

// userGorm runs CRUD operations on the database using incoming User data.
// It assumes that data has been validated.
type userGorm struct {
	db *gorm.DB
}

// NewUserService returns an instance of UserService.
func NewUserService(db *gorm.DB, pepper, hmacKey string) *UserService {
	return &UserService{
		userValidator{
			hmac:          newHMAC(hmacKey),
			pepper:        pepper,
			emailRegex:    regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,16}$`),
			usernameRegex: regexp.MustCompile(`^[\w.@+-]+$`),
			userGorm: userGorm{
				db: db,
			},
		},
	}
}

// Ensure the UserService struct properly implements the domain.UserService interface.
var _ domain.UserService = &UserService{}

// Authenticate checks a submitted username and password. Both failure cases return
// the same message so that the form doesn't reveal which usernames exist.
func (uv *userValidator) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	found, err := uv.userGorm.ByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errs.Is(err, errs.ENOTFOUND) {
			return nil, errs.Errorf(errs.EINVALID, "Please enter a correct username and password.")
		}
		return nil, err
	}

	// Append the pepper to the submitted password, and compare it to the stored hash.
	err = bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password+uv.pepper))
	if err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return nil, errs.Errorf(errs.EINVALID, "Please enter a correct username and password.")
		}
		return nil, errors.Wrap(err, "compare password hash")
	}
	return found, nil
}

// MakeRememberToken generates a remember token of RememberTokenBytes random bytes.
func (uv *userValidator) MakeRememberToken() (string, error) {
	return bytesToString(RememberTokenBytes)
}

// ByRemember hashes a remember token and looks up the user owning the hash.
func (uv *userValidator) ByRemember(token string) (*domain.User, error) {
	user := domain.User{
		Remember: token,
	}
	if err := runUserValFns(&user, uv.rememberHmac); err != nil {
		return nil, err
	}
	return uv.userGorm.ByRemember(user.RememberHash)
}

// Create runs validations needed for creating new User database records.
// It will create a remember token if none is provided.
func (uv *userValidator) Create(ctx context.Context, user *domain.User) error {
	err := runUserValFns(user,
		uv.usernameNormalize,
		uv.usernameRequired,
		uv.usernameFormat,
		uv.usernameIsAvail(ctx),
		uv.passwordRequired,
		uv.passwordMinLength,
		uv.passwordBcrypt,
		uv.passwordHashRequired,
		uv.rememberSetIfUnset,
		uv.rememberMinBytes,
		uv.rememberHmac,
		uv.rememberHashRequired,
		uv.emailNormalize,
		uv.emailFormat,
		uv.emailIsAvail(ctx))
	if err != nil {
		return err
	}
	return uv.userGorm.Create(ctx, user)
}

// Update runs validations needed for updating a User record in the database.
// It will hash a remember token if it is provided (and will not return an error if it's not).
func (uv *userValidator) Update(ctx context.Context, user *domain.User) error {
	err := runUserValFns(user,
		uv.usernameNormalize,
		uv.usernameRequired,
		uv.usernameFormat,
		uv.usernameIsAvail(ctx),
		uv.passwordMinLength,
		uv.passwordBcrypt,
		uv.passwordHashRequired,
		uv.rememberMinBytes,
		uv.rememberHmac,
		uv.rememberHashRequired,
		uv.emailNormalize,
		uv.emailFormat,
		uv.emailIsAvail(ctx))
	if err != nil {
		return err
	}
	return uv.userGorm.Update(ctx, user)
}

// runUserValFns runs any number of functions of type userValFn on the passed in User object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runUserValFns(user *domain.User, fns ...userValFn) error {
	for _, fn := range fns {
		if err := fn(user); err != nil {
			return err
		}
	}
	return nil
}

// A userValFn is any function that takes in a pointer to a domain.User object and returns an error.
type userValFn func(user *domain.User) error

func (uv *userValidator) usernameNormalize(user *domain.User) error {
	user.Username = strings.TrimSpace(user.Username)
	return nil
}

func (uv *userValidator) usernameRequired(user *domain.User) error {
	if user.Username == "" {
		return errs.FieldError("username", errs.FieldRequired)
	}
	return nil
}

// ReservedUsernames are the first path segments of fixed routes. A user with one of
// these names would have an unreachable profile.
var ReservedUsernames = map[string]bool{
	"new":    true,
	"follow": true,
	"group":  true,
	"auth":   true,
	"media":  true,
}

// usernameFormat allows letters, digits and @.+-_ up to UsernameMaxLength characters.
func (uv *userValidator) usernameFormat(user *domain.User) error {
	if utf8.RuneCountInString(user.Username) > UsernameMaxLength {
		return errs.FieldError("username", "Ensure this value has at most 150 characters.")
	}
	if !uv.usernameRegex.MatchString(user.Username) {
		return errs.FieldError("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}
	if ReservedUsernames[strings.ToLower(user.Username)] {
		return errs.FieldError("username", "This username is not available.")
	}
	return nil
}

// usernameIsAvail makes sure that no other user has the username.
func (uv *userValidator) usernameIsAvail(ctx context.Context) userValFn {
	return func(user *domain.User) error {
		existing, err := uv.userGorm.ByUsername(ctx, user.Username)
		if errs.Is(err, errs.ENOTFOUND) {
			return nil
		}
		if err != nil {
			return err
		}
		if user.ID != existing.ID {
			return errs.FieldError("username", "A user with that username already exists.")
		}
		return nil
	}
}

// emailFormat makes sure that a provided email address matches a predefined regex pattern.
// The email address is optional.
func (uv *userValidator) emailFormat(user *domain.User) error {
	if user.Email == "" {
		return nil
	}
	if !uv.emailRegex.MatchString(user.Email) {
		return errs.FieldError("email", "Enter a valid email address.")
	}
	return nil
}

// emailIsAvail makes sure that a provided email address is not yet taken.
func (uv *userValidator) emailIsAvail(ctx context.Context) userValFn {
	return func(user *domain.User) error {
		if user.Email == "" {
			return nil
		}
		existing, err := uv.userGorm.ByEmail(ctx, user.Email)
		if errs.Is(err, errs.ENOTFOUND) {
			return nil
		}
		if err != nil {
			return err
		}
		if user.ID != existing.ID {
			return errs.FieldError("email", "This email address is already taken.")
		}
		return nil
	}
}

// emailNormalize converts the email to all lowercase and trims its whitespaces.
func (uv *userValidator) emailNormalize(user *domain.User) error {
	user.Email = strings.TrimSpace(strings.ToLower(user.Email))
	return nil
}

// passwordBcrypt hashes a user's password with a predefined pepper, if one is set.
// It then clears the password on the user object.
func (uv *userValidator) passwordBcrypt(user *domain.User) error {
	if user.Password == "" {
		return nil
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(user.Password+uv.pepper), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	user.PasswordHash = string(hashedBytes)
	user.Password = ""
	return nil
}

func (uv *userValidator) passwordHashRequired(user *domain.User) error {
	if user.PasswordHash == "" {
		return errs.FieldError("password", errs.FieldRequired)
	}
	return nil
}

// passwordMinLength makes sure that the user's password is at least 8 characters long.
func (uv *userValidator) passwordMinLength(user *domain.User) error {
	if user.Password == "" {
		return nil
	}
	if utf8.RuneCountInString(user.Password) < 8 {
		return errs.FieldError("password", "This password is too short. It must contain at least 8 characters.")
	}
	return nil
}

func (uv *userValidator) passwordRequired(user *domain.User) error {
	if user.Password == "" {
		return errs.FieldError("password", errs.FieldRequired)
	}
	return nil
}

func (uv *userValidator) rememberHashRequired(user *domain.User) error {
	if user.RememberHash == "" {
		return errs.Errorf(errs.EINTERNAL, "Remember token hash is empty.")
	}
	return nil
}

// rememberHmac creates the user's remember token hash, if a remember token has been provided.
func (uv *userValidator) rememberHmac(user *domain.User) error {
	if user.Remember == "" {
		return nil
	}
	user.RememberHash = uv.hmac.hash(user.Remember)
	return nil
}

// rememberMinBytes makes sure that the user's remember token is not too short.
func (uv *userValidator) rememberMinBytes(user *domain.User) error {
	if user.Remember == "" {
		return nil
	}
	n, err := nBytes(user.Remember)
	if err != nil {
		return errs.Errorf(errs.EINVALID, "Remember token is malformed.")
	}
	if n < RememberTokenBytes {
		return errs.Errorf(errs.EINVALID, "Remember token is too short.")
	}
	return nil
}

// rememberSetIfUnset creates the user's remember token if none is provided.
func (uv *userValidator) rememberSetIfUnset(user *domain.User) error {
	if user.Remember != "" {
		return nil
	}
	token, err := uv.MakeRememberToken()
	if err != nil {
		return err
	}
	user.Remember = token
	return nil
}

// ByID retrieves a User database record by ID.
func (ug *userGorm) ByID(ctx context.Context, id int) (*domain.User, error) {
	var user domain.User
	err := first(ug.db.WithContext(ctx).Where("id = ?", id), &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ByUsername retrieves a User database record by its username.
func (ug *userGorm) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := first(ug.db.WithContext(ctx).Where("username = ?", username), &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ByEmail retrieves a User database record by Email.
func (ug *userGorm) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := first(ug.db.WithContext(ctx).Where("email = ?", email), &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ByRemember retrieves a User database record by its hashed remember token.
// The user middleware calls this on every request carrying a remember cookie.
func (ug *userGorm) ByRemember(rememberHash string) (*domain.User, error) {
	var user domain.User
	err := first(ug.db.Where("remember_hash = ?", rememberHash), &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create stores the data from the User object in a new database record.
func (ug *userGorm) Create(ctx context.Context, user *domain.User) error {
	return errors.Wrap(ug.db.WithContext(ctx).Create(user).Error, "create user")
}

// Update saves changes to an existing user record in the database.
func (ug *userGorm) Update(ctx context.Context, user *domain.User) error {
	return errors.Wrap(ug.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error, "update user")
}

// first is a helper for getting the first database record that matches a given query.
// A missing record is reported as errs.ENOTFOUND.
func first(db *gorm.DB, dst interface{}) error {
	err := db.First(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Errorf(errs.ENOTFOUND, "Not found.")
	}
	return errors.WithStack(err)
}

// HMAC hashes remember tokens with a secret key.
type HMAC struct {
	key []byte
}

func newHMAC(key string) HMAC {
	return HMAC{
		key: []byte(key),
	}
}

// hash returns the base64 encoded HMAC-SHA256 of input. It is safe for concurrent use.
func (h HMAC) hash(input string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(input))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// randomBytes generates n random bytes using crypto/rand.
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "read random bytes")
	}
	return b, nil
}

// nBytes returns the number of bytes used in a base64 URL encoded string.
func nBytes(base64String string) (int, error) {
	b, err := base64.URLEncoding.DecodeString(base64String)
	if err != nil {
		return -1, err
	}
	return len(b), nil
}

// bytesToString returns nBytes random bytes, base64 URL encoded.
func bytesToString(nBytes int) (string, error) {
	b, err := randomBytes(nBytes)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
