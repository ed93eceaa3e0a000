package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/kikundi/core/user"
)

// roleMiddleware lets through users whose role ranks at least `min`.
func roleMiddleware(min string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if user.RoleAtLeast(claims.Role, min) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleAdmin)
}

func instructorMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleInstructor)
}

// ctxUserOrInstructorMiddleware restricts /students/:id routes to the student themselves or staff.
func ctxUserOrInstructorMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return objectMiddleware(svc, func(ctxUsr user.User) bool { return ctxUsr.IsInstructor() })
}

// ctxUserOrAdminMiddleware restricts /users/:id routes to the user themselves or admins.
func ctxUserOrAdminMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return objectMiddleware(svc, func(ctxUsr user.User) bool { return ctxUsr.IsAdmin() })
}

// objectMiddleware stores the user identified by the `id` param under "object".
func objectMiddleware(svc *user.Service, privileged func(user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}

			if ctx.Param("id") == ctxUsr.ID || privileged(ctxUsr) {
				usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
				if err == nil {
					ctx.Set("object", usr)
					return next(ctx)
				}
				return err
			}
			return errHttpNotFound
		}
	}
}
