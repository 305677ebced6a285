package user_test

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
	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/internal/seed"
	"github.com/frahmantamala/production-management/internal/user"
	userPostgres "github.com/frahmantamala/production-management/internal/user/postgres"
	"github.com/frahmantamala/production-management/pkg/pagination"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func TestUser(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "User Suite")
}

type forgetRecorder struct{ ids []int64 }

func (f *forgetRecorder) Forget(_ context.Context, id int64) { f.ids = append(f.ids, id) }

var _ = Describe("User Service", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		service   *user.Service
		forgotten *forgetRecorder
		admin     *permission.Principal
		roleIDs   map[string]int64
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = dbtest.Open()
		Expect(err).NotTo(HaveOccurred())
		Expect(seed.Permissions(ctx, db)).To(Succeed())
		Expect(seed.Roles(ctx, db)).To(Succeed())

		var roles []roleDatamodel.Role
		Expect(db.Find(&roles).Error).To(Succeed())
		roleIDs = map[string]int64{}
		for _, r := range roles {
			roleIDs[r.Name] = r.ID
		}

		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		forgotten = &forgetRecorder{}
		recorder := audit.NewService(auditPostgres.NewAuditRepository(db), slogger)
		service = user.NewService(userPostgres.NewUserRepository(db), database.NewTxManager(db), recorder, forgotten, bcrypt.MinCost, slogger)
		admin = &permission.Principal{UserID: 999, Superuser: true}
	})

	create := func(login string, roles ...string) *user.User {
		ids := []int64{}
		for _, r := range roles {
			ids = append(ids, roleIDs[r])
		}
		u, err := service.CreateUser(ctx, admin, user.CreateUserDTO{
			Login:     login,
			Email:     login + "@example.com",
			Password:  "correct-horse",
			FirstName: "Test",
			LastName:  login,
			RoleIDs:   ids,
		})
		Expect(err).NotTo(HaveOccurred())
		return u
	}

	Describe("CreateUser", func() {
		It("stores the user with its roles", func() {
			u := create("alice", "Worker")
			Expect(u.ID).NotTo(BeZero())
			Expect(u.IsActive).To(BeTrue())
			Expect(u.Roles).To(HaveLen(1))
			Expect(u.Roles[0].Name).To(Equal("Worker"))
		})

		It("rejects a taken login or email", func() {
			create("alice")
			_, err := service.CreateUser(ctx, admin, user.CreateUserDTO{
				Login: "someone", Email: "ALICE@example.com", Password: "correct-horse",
			})
			Expect(errors.Is(err, internal.ErrLoginTaken)).To(BeTrue())
		})

		It("rejects unknown roles", func() {
			_, err := service.CreateUser(ctx, admin, user.CreateUserDTO{
				Login: "bob", Email: "bob@example.com", Password: "correct-horse", RoleIDs: []int64{4242},
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})

		It("does not let a non-superuser hand out the Admin role", func() {
			manager := &permission.Principal{UserID: 5, Permissions: permission.Set{"users.create": 3}}
			_, err := service.CreateUser(ctx, manager, user.CreateUserDTO{
				Login: "mallory", Email: "mallory@example.com", Password: "correct-horse",
				RoleIDs: []int64{roleIDs[seed.AdminRoleName]},
			})
			Expect(errors.Is(err, internal.ErrForbidden)).To(BeTrue())
		})

		It("validates the payload", func() {
			_, err := service.CreateUser(ctx, admin, user.CreateUserDTO{Login: "x", Email: "not-an-email", Password: "short"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			details := appErr.Details.(internal.ValidationErrors)
			Expect(len(details.Errors)).To(BeNumerically(">=", 3))
		})
	})

	Describe("Me and LoadPrincipal", func() {
		It("merges permissions across roles by maximum level", func() {
			u := create("carol", "Worker", "Production Manager")

			me, err := service.Me(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(me.IsSuperuser).To(BeFalse())
			Expect(me.Permissions["production.work"]).To(Equal(3))
			Expect(me.Permissions).NotTo(HaveKey("users.delete"))
		})

		It("reports the Admin role as superuser", func() {
			u := create("root", seed.AdminRoleName)
			p, err := service.LoadPrincipal(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Superuser).To(BeTrue())
			Expect(permission.HasPermission(p, "anything", "at_all", permission.LevelFull)).To(BeTrue())
		})

		It("resolves inactive users to no principal", func() {
			u := create("dave", "Worker")
			Expect(service.DeleteUser(ctx, admin, u.ID)).To(Succeed())

			p, err := service.LoadPrincipal(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeNil())
		})
	})

	Describe("UpdateUser", func() {
		It("replaces roles and drops the cached principal", func() {
			u := create("erin", "Worker")
			newRoles := []int64{roleIDs["Production Manager"]}

			updated, err := service.UpdateUser(ctx, admin, u.ID, user.UpdateUserDTO{RoleIDs: &newRoles})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Roles).To(HaveLen(1))
			Expect(updated.Roles[0].Name).To(Equal("Production Manager"))
			Expect(forgotten.ids).To(ContainElement(u.ID))
		})

		It("refuses to deactivate the caller's own account", func() {
			u := create("frank")
			self := &permission.Principal{UserID: u.ID, Superuser: true}
			inactive := false
			_, err := service.UpdateUser(ctx, self, u.ID, user.UpdateUserDTO{IsActive: &inactive})
			Expect(err).To(HaveOccurred())
		})

		Context("when the account holds the Admin role", func() {
			var (
				manager *permission.Principal
				boss    *user.User
			)

			BeforeEach(func() {
				manager = &permission.Principal{UserID: 5, Permissions: permission.Set{"users.update": 3, "users.delete": 3}}
				boss = create("boss", seed.AdminRoleName)
			})

			roleNames := func(id int64) []string {
				got, err := service.GetUser(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				names := []string{}
				for _, r := range got.Roles {
					names = append(names, r.Name)
				}
				return names
			}

			It("does not let a non-superuser take the Admin role away", func() {
				roles := []int64{roleIDs["Worker"]}
				_, err := service.UpdateUser(ctx, manager, boss.ID, user.UpdateUserDTO{RoleIDs: &roles})

				Expect(errors.Is(err, internal.ErrForbidden)).To(BeTrue())
				Expect(roleNames(boss.ID)).To(ConsistOf(seed.AdminRoleName))
			})

			It("does not let a non-superuser deactivate the account", func() {
				inactive := false
				_, err := service.UpdateUser(ctx, manager, boss.ID, user.UpdateUserDTO{IsActive: &inactive})

				Expect(errors.Is(err, internal.ErrForbidden)).To(BeTrue())
				got, err := service.GetUser(ctx, boss.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.IsActive).To(BeTrue())
			})

			It("lets a non-superuser add roles while the Admin role stays", func() {
				roles := []int64{roleIDs[seed.AdminRoleName], roleIDs["Worker"]}
				_, err := service.UpdateUser(ctx, manager, boss.ID, user.UpdateUserDTO{RoleIDs: &roles})

				Expect(err).NotTo(HaveOccurred())
				Expect(roleNames(boss.ID)).To(ConsistOf(seed.AdminRoleName, "Worker"))
			})

			It("lets a superuser take the Admin role away", func() {
				roles := []int64{roleIDs["Worker"]}
				_, err := service.UpdateUser(ctx, admin, boss.ID, user.UpdateUserDTO{RoleIDs: &roles})

				Expect(err).NotTo(HaveOccurred())
				Expect(roleNames(boss.ID)).To(ConsistOf("Worker"))
			})
		})
	})

	Describe("DeleteUser", func() {
		It("deactivates and strips roles", func() {
			u := create("gina", "Worker")
			Expect(service.DeleteUser(ctx, admin, u.ID)).To(Succeed())

			got, err := service.GetUser(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IsActive).To(BeFalse())
			Expect(got.Roles).To(BeEmpty())
		})

		It("returns not found for unknown users", func() {
			Expect(errors.Is(service.DeleteUser(ctx, admin, 12345), internal.ErrUserNotFound)).To(BeTrue())
		})

		It("keeps non-superusers from deleting a superuser", func() {
			boss := create("chief", seed.AdminRoleName)
			manager := &permission.Principal{UserID: 5, Permissions: permission.Set{"users.delete": 3}}

			Expect(errors.Is(service.DeleteUser(ctx, manager, boss.ID), internal.ErrForbidden)).To(BeTrue())
			got, err := service.GetUser(ctx, boss.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IsActive).To(BeTrue())
		})
	})

	Describe("ChangePassword", func() {
		It("requires the current password when changing your own", func() {
			u := create("hank")
			self := &permission.Principal{UserID: u.ID}

			err := service.ChangePassword(ctx, self, u.ID, user.ChangePasswordDTO{CurrentPassword: "wrong", NewPassword: "another-secret"})
			Expect(err).To(HaveOccurred())

			err = service.ChangePassword(ctx, self, u.ID, user.ChangePasswordDTO{CurrentPassword: "correct-horse", NewPassword: "another-secret"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("needs users.update at edit level to change someone else's", func() {
			u := create("ivy")
			viewer := &permission.Principal{UserID: 77, Permissions: permission.Set{"users.update": 1}}
			err := service.ChangePassword(ctx, viewer, u.ID, user.ChangePasswordDTO{NewPassword: "another-secret"})
			Expect(errors.Is(err, internal.ErrForbidden)).To(BeTrue())
		})
	})

	Describe("ListUsers", func() {
		It("filters by search term and role", func() {
			create("jack", "Worker")
			create("jill", "Production Manager")
			create("zoe", "Worker")

			page, err := service.ListUsers(ctx, user.ListFilter{Search: "ji"}, pagination.New(1, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(int64(1)))
			Expect(page.Data[0].Login).To(Equal("jill"))

			workerID := roleIDs["Worker"]
			page, err = service.ListUsers(ctx, user.ListFilter{RoleID: &workerID}, pagination.New(1, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(int64(2)))
		})
	})
})
