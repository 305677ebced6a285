package role_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	auditPostgres "github.com/frahmantamala/production-management/internal/audit/postgres"
	"github.com/frahmantamala/production-management/internal/core/database"
	"github.com/frahmantamala/production-management/internal/core/database/dbtest"
	auditDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/audit"
	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/user"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/internal/role"
	rolePostgres "github.com/frahmantamala/production-management/internal/role/postgres"
	"github.com/frahmantamala/production-management/internal/seed"
	"github.com/frahmantamala/production-management/pkg/pagination"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

func TestRole(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Role Suite")
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) ForgetAll(context.Context) { c.calls++ }

var _ = Describe("Role Service", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		service *role.Service
		cache   *countingInvalidator
		admin   *permission.Principal
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = dbtest.Open()
		Expect(err).NotTo(HaveOccurred())
		Expect(seed.Permissions(ctx, db)).To(Succeed())

		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		cache = &countingInvalidator{}
		recorder := audit.NewService(auditPostgres.NewAuditRepository(db), slogger)
		service = role.NewService(rolePostgres.NewRoleRepository(db), database.NewTxManager(db), recorder, cache, slogger)
		admin = &permission.Principal{UserID: 1, Superuser: true}
	})

	assignUser := func(roleID int64) {
		u := userDatamodel.User{Login: "worker", Email: "worker@example.com", PasswordHash: "x", IsActive: true}
		Expect(db.Create(&u).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.UserRole{UserID: u.ID, RoleID: roleID}).Error).To(Succeed())
	}

	Describe("CreateRole", func() {
		It("drops zero levels and unknown keys", func() {
			// Given a role payload with a zero level and an unknown key
			dto := role.RoleDTO{
				Name:        "Manager",
				Permissions: map[string]int{"users.read": 2, "users.delete": 0, "rockets.launch": 3},
			}

			// When the role is created
			created, err := service.CreateRole(ctx, admin, dto)

			// Then only the non-zero catalog entry is stored
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Permissions).To(Equal(map[string]int{"users.read": 2}))

			var rows []roleDatamodel.RolePermission
			Expect(db.Where("role_id = ?", created.ID).Find(&rows).Error).To(Succeed())
			Expect(rows).To(HaveLen(1))

			// And the manager cannot delete users
			loaded, err := service.GetRole(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			p := &permission.Principal{Permissions: permission.Set{}}
			for k, v := range loaded.Permissions {
				p.Permissions[k] = permission.Level(v)
			}
			Expect(permission.HasPermission(p, "users", "delete", permission.LevelView)).To(BeFalse())
			Expect(permission.HasPermission(p, "users", "read", permission.LevelEdit)).To(BeTrue())
		})

		It("grants the wildcard key like any catalog entry", func() {
			created, err := service.CreateRole(ctx, admin, role.RoleDTO{
				Name:        "Viewer",
				Permissions: map[string]int{permission.WildcardKey: 1},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Permissions).To(Equal(map[string]int{"*.*": 1}))

			var stored roleDatamodel.Role
			Expect(db.Preload("Permissions.Permission").First(&stored, created.ID).Error).To(Succeed())
			p := permission.FromRoles(7, []roleDatamodel.Role{stored})

			Expect(p.Superuser).To(BeFalse())
			Expect(permission.HasPermission(p, "inventory", "stock", permission.LevelView)).To(BeTrue())
			Expect(permission.HasPermission(p, "dashboard", "read", permission.LevelView)).To(BeTrue())
			Expect(permission.HasPermission(p, "inventory", "stock", permission.LevelEdit)).To(BeFalse())
		})

		It("rejects a duplicate name with a conflict", func() {
			_, err := service.CreateRole(ctx, admin, role.RoleDTO{Name: "Manager"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.CreateRole(ctx, admin, role.RoleDTO{Name: "Manager"})
			Expect(errors.Is(err, internal.ErrRoleNameTaken)).To(BeTrue())
		})

		It("rejects levels outside 0..3", func() {
			_, err := service.CreateRole(ctx, admin, role.RoleDTO{Name: "Bad", Permissions: map[string]int{"users.read": 4}})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})

		It("only lets superusers create superuser roles", func() {
			plain := &permission.Principal{UserID: 2, Permissions: permission.Set{"roles.create": 3}}
			_, err := service.CreateRole(ctx, plain, role.RoleDTO{Name: "Root", IsSuperuser: true})
			Expect(errors.Is(err, internal.ErrForbidden)).To(BeTrue())
		})

		It("writes an audit row in the same transaction", func() {
			created, err := service.CreateRole(ctx, admin, role.RoleDTO{Name: "Audited"})
			Expect(err).NotTo(HaveOccurred())

			var logs []auditDatamodel.Log
			Expect(db.Where("entity_type = ?", audit.EntityRole).Find(&logs).Error).To(Succeed())
			Expect(logs).To(HaveLen(1))
			Expect(logs[0].EntityID).To(Equal(itoa(created.ID)))
		})
	})

	Describe("UpdateRole", func() {
		var created *role.Role

		BeforeEach(func() {
			var err error
			created, err = service.CreateRole(ctx, admin, role.RoleDTO{
				Name:        "Storekeeper",
				Permissions: map[string]int{"inventory.read": 1, "inventory.stock": 1},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("replaces the whole permission set", func() {
			updated, err := service.UpdateRole(ctx, admin, created.ID, role.RoleDTO{
				Name:        "Storekeeper",
				Permissions: map[string]int{"inventory.stock": 2, "inventory.read": 0, "users.read": 1},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Permissions).To(Equal(map[string]int{"inventory.stock": 2, "users.read": 1}))

			reread, err := service.GetRole(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reread.Permissions).To(Equal(updated.Permissions))
			Expect(cache.calls).To(Equal(1))
		})

		It("returns not found for a missing role", func() {
			_, err := service.UpdateRole(ctx, admin, 999, role.RoleDTO{Name: "Ghost"})
			Expect(errors.Is(err, internal.ErrRoleNotFound)).To(BeTrue())
		})

		It("rejects renaming onto an existing name", func() {
			_, err := service.CreateRole(ctx, admin, role.RoleDTO{Name: "Auditor"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.UpdateRole(ctx, admin, created.ID, role.RoleDTO{Name: "Auditor"})
			Expect(errors.Is(err, internal.ErrRoleNameTaken)).To(BeTrue())

			unchanged, err := service.GetRole(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(unchanged.Name).To(Equal("Storekeeper"))
			Expect(unchanged.Permissions).To(HaveLen(2))
		})
	})

	Describe("DeleteRole", func() {
		It("rejects a role held by a user", func() {
			created, err := service.CreateRole(ctx, admin, role.RoleDTO{Name: "Busy", Permissions: map[string]int{"users.read": 1}})
			Expect(err).NotTo(HaveOccurred())
			assignUser(created.ID)

			err = service.DeleteRole(ctx, admin, created.ID)
			Expect(errors.Is(err, internal.ErrRoleInUse)).To(BeTrue())

			still, err := service.GetRole(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(still.UserCount).To(Equal(int64(1)))
		})

		It("deletes an unused role together with its permission rows", func() {
			created, err := service.CreateRole(ctx, admin, role.RoleDTO{Name: "Idle", Permissions: map[string]int{"users.read": 1, "roles.read": 2}})
			Expect(err).NotTo(HaveOccurred())

			Expect(service.DeleteRole(ctx, admin, created.ID)).To(Succeed())

			var count int64
			Expect(db.Model(&roleDatamodel.RolePermission{}).Where("role_id = ?", created.ID).Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())
			_, err = service.GetRole(ctx, created.ID)
			Expect(errors.Is(err, internal.ErrRoleNotFound)).To(BeTrue())
		})
	})

	Describe("ListRoles", func() {
		It("flattens permissions and counts users", func() {
			a, err := service.CreateRole(ctx, admin, role.RoleDTO{Name: "Alpha", Permissions: map[string]int{"users.read": 3}})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.CreateRole(ctx, admin, role.RoleDTO{Name: "Beta"})
			Expect(err).NotTo(HaveOccurred())
			assignUser(a.ID)

			page, err := service.ListRoles(ctx, pagination.New(1, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(int64(2)))
			Expect(page.Data[0].Name).To(Equal("Alpha"))
			Expect(page.Data[0].UserCount).To(Equal(int64(1)))
			Expect(page.Data[0].Permissions).To(Equal(map[string]int{"users.read": 3}))
			Expect(page.Data[1].UserCount).To(BeZero())
		})
	})

	Describe("GetAllPermissions", func() {
		It("groups the catalog by module", func() {
			groups, err := service.GetAllPermissions(ctx)
			Expect(err).NotTo(HaveOccurred())

			total := 0
			modules := []string{}
			for _, g := range groups {
				modules = append(modules, g.Module)
				total += len(g.Permissions)
				for _, p := range g.Permissions {
					Expect(p.Module).To(Equal(g.Module))
				}
			}
			Expect(total).To(Equal(len(permission.Catalog)))
			Expect(modules).To(ContainElements("users", "roles", "inventory", "production"))
		})
	})
})
