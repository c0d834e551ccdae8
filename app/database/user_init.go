package database

import (
	"fmt"
	"vid2doc/app/config"
	"vid2doc/app/logger"
	"vid2doc/app/model"
	"vid2doc/app/utils"
)

// InitAdminUser 初始化管理员账户
func InitAdminUser(cfg *config.Config, log *logger.Logger) error {
	if cfg.Server.Username == "" || cfg.Server.Password == "" {
		return fmt.Errorf("管理员账户配置不能为空，请在配置文件中设置 username 和 password")
	}

	var admin model.User
	result := DB.Where("is_admin = ?", true).First(&admin)
	if result.Error == nil {
		// 管理员已存在，按配置同步用户名和密码
		changed := false
		if admin.Username != cfg.Server.Username {
			admin.Username = cfg.Server.Username
			changed = true
		}
		if !utils.VerifyPassword(cfg.Server.Password, admin.Password) {
			hash, err := utils.HashPassword(cfg.Server.Password)
			if err != nil {
				return fmt.Errorf("哈希密码失败: %v", err)
			}
			admin.Password = hash
			changed = true
		}
		if changed {
			if err := DB.Save(&admin).Error; err != nil {
				return fmt.Errorf("更新管理员账户失败: %v", err)
			}
			log.Infof("管理员账户 '%s' 已按配置更新", cfg.Server.Username)
		}
		return nil
	}

	// 不存在管理员用户，创建新的管理员用户
	hash, err := utils.HashPassword(cfg.Server.Password)
	if err != nil {
		return fmt.Errorf("哈希密码失败: %v", err)
	}

	admin = model.User{
		Username: cfg.Server.Username,
		Password: hash,
		IsAdmin:  true,
	}
	if err := DB.Create(&admin).Error; err != nil {
		return fmt.Errorf("创建管理员账户失败: %v", err)
	}

	log.Infof("管理员账户 '%s' 创建成功", cfg.Server.Username)
	return nil
}
