package postgres

import "gorm.io/gorm"

func paginate(page, pageSize int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if pageSize <= 0 {
			return db
		}
		if page <= 0 {
			page = 1
		}
		return db.Offset((page - 1) * pageSize).Limit(pageSize)
	}
}

func totalPages(count int64, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	return int((count + int64(pageSize) - 1) / int64(pageSize))
}
