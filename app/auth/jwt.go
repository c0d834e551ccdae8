package auth

import (
	"errors"
	"time"
	"vid2doc/app/config"

	"github.com/golang-jwt/jwt/v5"
)

// refreshWindow 到期前允许换发新令牌的时间窗口
const refreshWindow = time.Hour

// Claims 访问令牌携带的用户声明
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTService 访问令牌的签发与校验
type JWTService struct {
	secret []byte
	issuer string
	expire time.Duration
}

// NewJWTService 创建令牌服务
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		expire: time.Duration(cfg.ExpireTime) * time.Hour,
	}
}

// GenerateToken 为指定用户签发 HS256 令牌
func (j *JWTService) GenerateToken(userID uint, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// ValidateToken 校验令牌并还原用户声明
func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// RefreshToken 在到期前的换发窗口内签发新令牌
func (j *JWTService) RefreshToken(tokenString string) (string, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}

	if time.Until(claims.ExpiresAt.Time) > refreshWindow {
		return "", errors.New("token still valid, no need to refresh")
	}
	return j.GenerateToken(claims.UserID, claims.Username)
}
