package auth

import (
	"testing"
	"vid2doc/app/config"
)

func testService(expireHours int) *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:     "test-secret",
		Issuer:     "vid2doc",
		ExpireTime: expireHours,
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := testService(24)

	token, err := svc.GenerateToken(7, "admin")
	if err != nil {
		t.Fatalf("签发令牌失败: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("校验令牌失败: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "admin" {
		t.Fatalf("令牌声明不符: %+v", claims)
	}
	if claims.Issuer != "vid2doc" {
		t.Fatalf("签发者不符: %s", claims.Issuer)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := testService(24).GenerateToken(1, "admin")
	if err != nil {
		t.Fatalf("签发令牌失败: %v", err)
	}

	other := NewJWTService(config.JWTConfig{Secret: "other-secret", Issuer: "vid2doc", ExpireTime: 24})
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("异钥令牌应校验失败")
	}
}

func TestRefreshTokenOutsideWindow(t *testing.T) {
	svc := testService(24)

	token, err := svc.GenerateToken(1, "admin")
	if err != nil {
		t.Fatalf("签发令牌失败: %v", err)
	}

	// 距到期远超换发窗口：拒绝换发
	if _, err := svc.RefreshToken(token); err == nil {
		t.Fatalf("远未到期的令牌不应换发")
	}
}

func TestRefreshTokenWithinWindow(t *testing.T) {
	// 有效期不超过换发窗口，签发即落入可换发区间
	svc := testService(1)

	token, err := svc.GenerateToken(2, "admin")
	if err != nil {
		t.Fatalf("签发令牌失败: %v", err)
	}

	refreshed, err := svc.RefreshToken(token)
	if err != nil {
		t.Fatalf("换发窗口内应签发新令牌: %v", err)
	}

	claims, err := svc.ValidateToken(refreshed)
	if err != nil {
		t.Fatalf("校验新令牌失败: %v", err)
	}
	if claims.UserID != 2 {
		t.Fatalf("新令牌应保留用户声明: %+v", claims)
	}
}
