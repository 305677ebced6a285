package permission_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
	"github.com/frahmantamala/production-management/internal/permission"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPermission(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Permission Suite")
}

func perm(module, action string, value int) roleDatamodel.RolePermission {
	return roleDatamodel.RolePermission{
		Value:      value,
		Permission: roleDatamodel.Permission{Module: module, Action: action},
	}
}

var _ = Describe("HasPermission", func() {
	It("denies a nil principal", func() {
		Expect(permission.HasPermission(nil, "users", "read", permission.LevelView)).To(BeFalse())
	})

	It("treats unknown keys as level zero", func() {
		p := &permission.Principal{UserID: 1, Permissions: permission.Set{"users.read": permission.LevelEdit}}
		Expect(permission.HasPermission(p, "inventory", "read", permission.LevelView)).To(BeFalse())
		Expect(permission.HasPermission(p, "nonsense", "whatever", permission.LevelView)).To(BeFalse())
	})

	It("compares the stored level against the required level", func() {
		p := &permission.Principal{UserID: 1, Permissions: permission.Set{"users.read": permission.LevelEdit}}
		Expect(permission.HasPermission(p, "users", "read", permission.LevelView)).To(BeTrue())
		Expect(permission.HasPermission(p, "users", "read", permission.LevelEdit)).To(BeTrue())
		Expect(permission.HasPermission(p, "users", "read", permission.LevelFull)).To(BeFalse())
	})

	It("treats a required level of zero as level one", func() {
		p := &permission.Principal{UserID: 1, Permissions: permission.Set{}}
		Expect(permission.HasPermission(p, "users", "read", permission.LevelNone)).To(BeFalse())
	})

	It("tolerates a principal without a permission map", func() {
		p := &permission.Principal{UserID: 1}
		Expect(permission.HasPermission(p, "users", "read", permission.LevelView)).To(BeFalse())
	})

	It("lets a superuser through every check", func() {
		p := &permission.Principal{UserID: 1, Superuser: true}
		for _, d := range permission.Catalog {
			Expect(permission.HasPermission(p, d.Module, d.Action, permission.LevelFull)).To(BeTrue())
		}
		Expect(permission.HasPermission(p, "unknown", "thing", permission.LevelFull)).To(BeTrue())
	})

	It("honours the wildcard key at its stored level", func() {
		p := &permission.Principal{UserID: 1, Permissions: permission.Set{permission.WildcardKey: permission.LevelEdit}}
		Expect(permission.HasPermission(p, "inventory", "stock", permission.LevelEdit)).To(BeTrue())
		Expect(permission.HasPermission(p, "inventory", "stock", permission.LevelFull)).To(BeFalse())
	})
})

var _ = Describe("FromRoles", func() {
	It("takes the maximum level per key across roles and drops zero entries", func() {
		roles := []roleDatamodel.Role{
			{ID: 1, Name: "Manager", Permissions: []roleDatamodel.RolePermission{
				perm("users", "read", 2),
				perm("users", "delete", 0),
			}},
			{ID: 2, Name: "Storekeeper", Permissions: []roleDatamodel.RolePermission{
				perm("users", "read", 1),
				perm("inventory", "stock", 3),
			}},
		}

		p := permission.FromRoles(7, roles)

		Expect(p.UserID).To(Equal(int64(7)))
		Expect(p.Superuser).To(BeFalse())
		Expect(p.RoleIDs).To(ConsistOf(int64(1), int64(2)))
		Expect(p.Permissions).To(Equal(permission.Set{"users.read": 2, "inventory.stock": 3}))
		Expect(permission.HasPermission(p, "users", "delete", permission.LevelView)).To(BeFalse())
	})

	It("marks the principal as superuser when any role is flagged", func() {
		roles := []roleDatamodel.Role{
			{ID: 1, Name: "Viewer"},
			{ID: 2, Name: "Admin", IsSuperuser: true},
		}
		p := permission.FromRoles(3, roles)
		Expect(p.Superuser).To(BeTrue())
		Expect(permission.HasPermission(p, "users", "delete", permission.LevelFull)).To(BeTrue())
	})

	It("ignores out-of-range stored levels", func() {
		roles := []roleDatamodel.Role{{ID: 1, Permissions: []roleDatamodel.RolePermission{perm("users", "read", 9)}}}
		Expect(permission.FromRoles(1, roles).Permissions).To(BeEmpty())
	})
})

var _ = Describe("SplitKey", func() {
	It("splits on the last dot", func() {
		m, a, ok := permission.SplitKey("inventory.stock")
		Expect(ok).To(BeTrue())
		Expect(m).To(Equal("inventory"))
		Expect(a).To(Equal("stock"))
	})

	It("rejects keys without both parts", func() {
		for _, k := range []string{"", "users", ".read", "users."} {
			_, _, ok := permission.SplitKey(k)
			Expect(ok).To(BeFalse(), k)
		}
	})
})

type stubLoader struct {
	calls     int
	principal *permission.Principal
	err       error
}

func (s *stubLoader) LoadPrincipal(_ context.Context, userID int64) (*permission.Principal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.principal == nil {
		return nil, nil
	}
	cp := *s.principal
	cp.UserID = userID
	return &cp, nil
}

var _ = Describe("Resolver", func() {
	var (
		ctx    context.Context
		loader *stubLoader
		cache  *permission.MemoryCache
		res    *permission.Resolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		loader = &stubLoader{principal: &permission.Principal{Permissions: permission.Set{"users.read": 1}}}
		cache = permission.NewMemoryCache(time.Minute)
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		res = permission.NewResolver(loader, cache, slogger)
	})

	It("loads once and then serves from cache", func() {
		p1, err := res.Resolve(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		p2, err := res.Resolve(ctx, 5)
		Expect(err).NotTo(HaveOccurred())

		Expect(p1.UserID).To(Equal(int64(5)))
		Expect(p2).To(BeIdenticalTo(p1))
		Expect(loader.calls).To(Equal(1))
	})

	It("reloads after Forget and ForgetAll", func() {
		_, _ = res.Resolve(ctx, 5)
		res.Forget(ctx, 5)
		_, _ = res.Resolve(ctx, 5)
		res.ForgetAll(ctx)
		_, _ = res.Resolve(ctx, 5)
		Expect(loader.calls).To(Equal(3))
	})

	It("does not cache missing users", func() {
		loader.principal = nil
		p, err := res.Resolve(ctx, 9)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeNil())
		_, _ = res.Resolve(ctx, 9)
		Expect(loader.calls).To(Equal(2))
	})

	It("propagates loader errors", func() {
		loader.err = errors.New("db down")
		_, err := res.Resolve(ctx, 1)
		Expect(err).To(MatchError("db down"))
	})
})

var _ = Describe("LoaderFunc", func() {
	It("adapts a plain function", func() {
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		res := permission.NewResolver(permission.LoaderFunc(func(_ context.Context, id int64) (*permission.Principal, error) {
			return &permission.Principal{UserID: id, Superuser: true}, nil
		}), nil, slogger)

		p, err := res.Resolve(context.Background(), 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.UserID).To(Equal(int64(3)))
		Expect(p.Superuser).To(BeTrue())
	})
})
