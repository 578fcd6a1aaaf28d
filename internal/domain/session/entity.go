package session

// Role is the portal-side classification of an account.
type Role string

const (
	RoleStudent  Role = "student"
	RoleTeacher  Role = "teacher"
	RoleEmployee Role = "employee"
)

// RoleFromTypeCode maps the single-character user-type code carried in the
// access token to a Role. The mapping is total: any code other than the two
// known ones, including an empty string, resolves to employee.
func RoleFromTypeCode(code string) Role {
	switch code {
	case "S":
		return RoleStudent
	case "T":
		return RoleTeacher
	default:
		return RoleEmployee
	}
}

// User is the identity decoded from the access token. It is a derived value:
// it is rebuilt whenever the access token changes and never fetched remotely.
type User struct {
	ID                int64  `json:"id"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Patronymic        string `json:"patronymic"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	AvatarURL         string `json:"avatar"`
	Gender            string `json:"gender"`
	BirthDate         string `json:"birth_date"`
	TypeCode          string `json:"user_type"`
	NotificationCount int    `json:"notification_count"`
	Role              Role   `json:"-"`
}

// FullName joins the non-empty name parts in display order.
func (u *User) FullName() string {
	name := u.LastName
	if u.FirstName != "" {
		if name != "" {
			name += " "
		}
		name += u.FirstName
	}
	if u.Patronymic != "" {
		if name != "" {
			name += " "
		}
		name += u.Patronymic
	}
	return name
}

// TokenPair is the credential pair returned by login and refresh.
// RefreshToken may be empty on refresh responses that do not rotate it.
type TokenPair struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// State is the top-level authentication state derived from stored tokens.
type State int

const (
	// Uninitialized means Initialize has not completed yet.
	Uninitialized State = iota
	// Unauthenticated means no refresh token is held; login is required.
	Unauthenticated
	// Locked means a refresh token is held but no access token: the device
	// was authenticated before and needs a local unlock (PIN or biometric).
	Locked
	// Authenticated means a decodable access token is held.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Locked:
		return "locked"
	case Authenticated:
		return "authenticated"
	default:
		return "uninitialized"
	}
}
