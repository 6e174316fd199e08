// Package curator is a Go client for browsing and curating a tagged content
// repository through its REST API.
//
// A View keeps one faceted search page consistent with its query string,
// exports the repository's pending selection through a polled background job
// and watches course imports until they finish.
//
//	client, _ := curator.New(ctx,
//	    curator.WithAPI("https://content.example.com", token),
//	    curator.WithPollIntervals(time.Second, 3*time.Second),
//	)
//	view, _ := client.OpenView(ctx, "physics", "?sortby=nr_views")
//	defer view.Close()
//
//	_, _ = view.UpdateFacet(ctx, "course", "8.01", true)
//	state := view.State()
//
//	_, _ = view.SubmitExport(ctx)
//	export, _ := view.WaitExport(ctx)
//	fmt.Println(export.URL)
package curator
