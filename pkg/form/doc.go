// Package form implements the descriptor-driven form engine: it mounts a list
// of field descriptors, hydrates them from the backend in edit mode, resolves
// select options, validates on submit and sends the transformed payload.
//
// Typical use:
//
//	engine, err := form.New(descriptors,
//		form.WithEntity("Student"),
//		form.WithDataSource(source),
//		form.WithEndpoints(form.Endpoints{Fetch: "/students", Save: "/students", Update: "/students"}),
//	)
//	if err != nil {
//		return err
//	}
//	if err := engine.Mount(ctx, id); err != nil {
//		return err
//	}
//	defer engine.Close()
package form
