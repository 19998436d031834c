package fakebackend

import (
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// User is a backend account.
type User struct {
	ID        int64
	Username  string
	RoleCode  string
	HoldingID *int64
	CompanyID *int64
	BranchID  *int64
	// Holdings the user may switch to.
	Holdings     []int64
	Capabilities []string
}

// HasHolding reports whether the user may act within holdingID.
func (u *User) HasHolding(holdingID int64) bool {
	return slices.Contains(u.Holdings, holdingID)
}

type userRecord struct {
	user         User
	passwordHash string
}

type userRepo struct {
	byID       map[int64]*userRecord
	byUsername map[string]int64
	lock       sync.RWMutex
}

func newUserRepo() *userRepo {
	return &userRepo{
		byID:       make(map[int64]*userRecord),
		byUsername: make(map[string]int64),
	}
}

func HashPassword(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// AddUser stores u with a bcrypt hash of password. MinCost keeps test setup fast.
func (s *Server) AddUser(u User, password string) error {
	if u.ID == 0 || u.Username == "" {
		return errors.New("[Server.AddUser] id and username are required")
	}
	hash, err := HashPassword(password, bcrypt.MinCost)
	if err != nil {
		return errors.Wrap(err, "[Server.AddUser] hash password")
	}
	if u.HoldingID != nil && !u.HasHolding(*u.HoldingID) {
		u.Holdings = append(u.Holdings, *u.HoldingID)
	}

	s.users.lock.Lock()
	defer s.users.lock.Unlock()
	key := strings.ToLower(u.Username)
	if _, exists := s.users.byUsername[key]; exists {
		return errors.Errorf("[Server.AddUser] username %q already exists", u.Username)
	}
	s.users.byID[u.ID] = &userRecord{user: u, passwordHash: hash}
	s.users.byUsername[key] = u.ID
	return nil
}

func (r *userRepo) authenticate(username, password string) (User, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return User{}, false
	}
	rec := r.byID[id]
	if !CheckPasswordHash(password, rec.passwordHash) {
		return User{}, false
	}
	return rec.user, true
}

func (r *userRepo) get(id int64) (User, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return User{}, false
	}
	return rec.user, true
}
